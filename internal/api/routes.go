package api

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")

	// Graph queries. Ids may contain slashes; clients escape them as %2F.
	api.GET("/components/:id/neighborhood", s.handleNeighborhood)
	api.GET("/components/:id/related", s.handleRelated)
	api.GET("/components/:id/score", s.handleScore)
	api.GET("/endpoints/:id/impact", s.handleImpact)
	api.GET("/code/:id/dependencies", s.handleDependencies)
	api.POST("/query", s.handleRawQuery)

	// Issues and evaluation
	api.GET("/issues", s.handleListIssues)
	api.POST("/evaluate", s.handleEvaluate)
	api.POST("/drift", s.handleDrift)

	// Ingestion
	api.POST("/ingest", s.handleIngest)
}
