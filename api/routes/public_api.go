package routes

import (
	"socialclient/api/handlers"
	"socialclient/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BridgeApi registers the local bridge routes. guard gates everything
// that needs a logged in user; browsers are only served from allowedOrigins.
func BridgeApi(router *gin.Engine, guard middleware.Guard, allowedOrigins []string) *gin.RouterGroup {
	router.Use(middleware.RequireOrigin(allowedOrigins))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/notices", handlers.WSNoticesHandler(allowedOrigins))

	publicEndpoints := router.Group("/api/")
	{
		publicEndpoints.POST("auth/login", handlers.Login)
		publicEndpoints.POST("auth/register", handlers.Register)
		publicEndpoints.POST("auth/verify", handlers.Verify)
		publicEndpoints.POST("auth/logout", handlers.Logout)
		publicEndpoints.GET("session", handlers.SessionState)
		publicEndpoints.GET("preferences/dark-mode", handlers.GetDarkMode)
		publicEndpoints.PUT("preferences/dark-mode", handlers.SetDarkMode)
		publicEndpoints.GET("feeds/:kind", handlers.GetFeed)
		publicEndpoints.GET("posts/:id/likers", handlers.GetLikers)
		publicEndpoints.GET("profiles/:userId", handlers.GetProfile)
		publicEndpoints.GET("profiles/:userId/followers", handlers.GetFollowers)
		publicEndpoints.GET("profiles/:userId/following", handlers.GetFollowing)
	}

	authEndpoints := router.Group("/api/", middleware.RequireSession(guard))
	{
		authEndpoints.POST("posts", handlers.CreatePost)
		authEndpoints.POST("posts/:id/like", handlers.ToggleLike)

		// Комментарии
		authEndpoints.POST("threads/:postId", handlers.OpenThread)
		authEndpoints.GET("threads/:postId", handlers.GetThread)
		authEndpoints.DELETE("threads/:postId", handlers.CloseThread)
		authEndpoints.POST("threads/:postId/comments", handlers.PostComment)
		authEndpoints.POST("threads/:postId/comments/:commentId/replies", handlers.PostReply)
		authEndpoints.GET("threads/:postId/comments/:commentId/replies", handlers.ExpandReplies)
		authEndpoints.POST("threads/:postId/comments/:commentId/like", handlers.ToggleCommentLike)

		// Подписки
		authEndpoints.POST("profiles/:userId/follow", handlers.ToggleFollow)
	}
	return publicEndpoints
}
