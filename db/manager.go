package db

import (
	"context"
	"fmt"
	"socialclient/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

// Open connects to the credential database for the given driver ("sqlite"
// or "postgres") and migrates it.
func Open(driver string, conf *config.ConfigSchema) (*gorm.DB, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gormConf := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var orm *gorm.DB
	var err error
	switch driver {
	case "sqlite":
		orm, err = gorm.Open(sqlite.Open(conf.Storage.SQLiteDSN), gormConf)
		if err != nil {
			return nil, err
		}
		// one writer keeps sqlite (and :memory: databases) consistent
		sqlDB, err := orm.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	case "postgres":
		if conf.Databases.Master.Host == "" {
			return nil, fmt.Errorf("master database configuration is missing")
		}
		orm, err = gorm.Open(postgres.Open(dsnFromConfig(conf.Databases.Master)), gormConf)
		if err != nil {
			return nil, err
		}
		replicas := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
		for _, r := range conf.Databases.Replicas {
			replicas = append(replicas, postgres.Open(dsnFromConfig(r)))
		}
		if len(replicas) > 0 {
			err = orm.Use(dbresolver.Register(dbresolver.Config{
				Replicas: replicas,
				Policy:   dbresolver.RandomPolicy{},
			}))
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	if err = Migrate(orm); err != nil {
		return nil, err
	}
	return orm, nil
}

// GetWriteDB returns a session routed to the master.
func GetWriteDB(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Write)
}
