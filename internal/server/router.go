package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bidding "lot-auction/internal/biddingService"
	"lot-auction/internal/models"
	handler "lot-auction/services/bidding/handler"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService *bidding.BiddingService) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware)     // correlation id for logs and responses
	router.Use(RequestLoggerMiddleware) // custom request logging

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	biddingHandler := handler.NewBiddingHandler(biddingService)

	api := router.Group("", IdentifyUser(biddingService))

	lots := api.Group("/lotes", RequireCapability(models.CapViewLots))
	{
		lots.GET("/:id", biddingHandler.GetLotHandler)
		lots.GET("/proyecto/:id_proyecto", biddingHandler.GetLotsByProjectHandler)
	}

	bids := api.Group("/pujas")
	{
		bids.POST("", RequireCapability(models.CapPlaceBid), biddingHandler.PlaceBidHandler)
		bids.GET("/mis-pujas", RequireCapability(models.CapViewOwnBids), biddingHandler.GetMyBidsHandler)
		bids.GET("/activas", RequireCapability(models.CapViewOwnBids), biddingHandler.GetActiveBidsHandler)
	}

	subscriptions := api.Group("/suscripciones", RequireCapability(models.CapPlaceBid))
	{
		subscriptions.GET("/check/:id_proyecto", biddingHandler.CheckSubscriptionHandler)
	}

	return router
}
