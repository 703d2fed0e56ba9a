package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects book related api endpoints.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.GET("/book", m.public(api.GetAllBooks))
	router.POST("/book", m.public(api.CreateBook))
	router.GET("/book/:id", m.public(api.GetOneBook))
	router.PUT("/book/:id", m.public(api.UpdateBook))
	router.DELETE("/book/:id", m.public(api.DeleteOneBook))
	return router
}
