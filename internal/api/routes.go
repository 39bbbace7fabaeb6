package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Portfolio routes
	api.HandleFunc("/portfolios", handler.CreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", handler.ListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id}", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/reset", handler.ResetPortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{id}/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/portfolios/{id}/snapshots", handler.ListSnapshots).Methods("GET")
	api.HandleFunc("/portfolios/{id}/positions", handler.ListPositions).Methods("GET")
	api.HandleFunc("/portfolios/{id}/trades", handler.ListTrades).Methods("GET")
	api.HandleFunc("/portfolios/{id}/orders", handler.ListOrders).Methods("GET")

	// Order routes
	api.HandleFunc("/orders", handler.CreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", handler.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", handler.CancelOrder).Methods("DELETE")

	// Strategy routes
	api.HandleFunc("/strategies", handler.CreateStrategy).Methods("POST")
	api.HandleFunc("/strategies", handler.ListStrategies).Methods("GET")
	api.HandleFunc("/strategies/{id}", handler.GetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{id}", handler.UpdateStrategy).Methods("PUT")
	api.HandleFunc("/strategies/{id}/dry-run", handler.DryRunStrategy).Methods("POST")
	api.HandleFunc("/strategies/{id}/runs", handler.ListRunLogs).Methods("GET")

	return router
}
