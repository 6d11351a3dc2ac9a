package services

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"socialclient/config"
	"socialclient/logger"
	"socialclient/storage"

	"go.uber.org/zap"
)

// Options overrides collaborators that NewClient would otherwise build from config.
type Options struct {
	KV        storage.KV
	Navigator Navigator
	Notifier  Notifier
	Events    EventSink
	Transport http.RoundTripper
}

// Client wires the store, the refresh transport and the engines together.
type Client struct {
	Store     *CredentialStore
	Transport *RefreshTransport
	API       *API
	Session   *Session
	Feeds     *FeedEngine
	Comments  *CommentEngine
	Graph     *SocialGraph
	Notifier  Notifier
	Events    EventSink

	kv          storage.KV
	unsubscribe func()
}

func NewClient(ctx context.Context, conf *config.ConfigSchema, opts Options) (*Client, error) {
	if conf == nil {
		conf = config.Default()
	}

	kv := opts.KV
	if kv == nil {
		var err error
		if kv, err = storage.Open(ctx, conf); err != nil {
			return nil, fmt.Errorf("failed to open credential storage: %w", err)
		}
	}

	events := opts.Events
	if events == nil {
		events = NopEventSink{}
		if conf.Events.RabbitMQURL != "" {
			sink, err := NewRabbitEventSink(conf.Events.RabbitMQURL, conf.Events.Exchange)
			if err != nil {
				logger.Log.Warn("event publishing disabled", zap.Error(err))
			} else {
				events = sink
			}
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}

	store := NewCredentialStore(kv)
	transport := NewRefreshTransport(opts.Transport, store, conf.API.BaseURL, conf.API.RefreshTimeout)
	api := NewAPI(conf.API.BaseURL, &http.Client{Transport: transport, Timeout: conf.API.Timeout})
	session := NewSession(store, api, opts.Navigator, notifier, events)
	transport.SetTerminator(session)
	transport.SetEventSink(events)

	feeds := NewFeedEngine(api, session, notifier, FeedOptions{
		PageSize:          conf.Feed.PageSize,
		RollbackOnFailure: conf.Feed.RollbackOnFailure,
		AvatarURLTemplate: conf.Feed.AvatarURLTemplate,
	})
	comments := NewCommentEngine(api, session, feeds, notifier, CommentOptions{
		RollbackOnFailure: conf.Feed.RollbackOnFailure,
		AvatarURLTemplate: conf.Feed.AvatarURLTemplate,
	})
	graph := NewSocialGraph(api, session, notifier, GraphOptions{
		RollbackOnFailure: conf.Feed.RollbackOnFailure,
		AvatarURLTemplate: conf.Feed.AvatarURLTemplate,
	})

	c := &Client{
		Store:     store,
		Transport: transport,
		API:       api,
		Session:   session,
		Feeds:     feeds,
		Comments:  comments,
		Graph:     graph,
		Notifier:  notifier,
		Events:    events,
		kv:        kv,
	}
	c.unsubscribe = session.Subscribe(func(ev ClientEvent) {
		switch ev.Kind {
		case EventLogin:
			transport.Reset()
			feeds.Reset()
		case EventLogout, EventExpired:
			feeds.Reset()
		}
	})

	if err := session.Hydrate(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if closer, ok := c.Events.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Log.Warn("failed to close event sink", zap.Error(err))
		}
	}
	return c.kv.Close()
}
