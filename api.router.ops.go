package main

import (
	"net/http"
	"net/http/pprof"

	_ "github.com/jeamon/books-api/docs"
	"github.com/julienschmidt/httprouter"
	httpswagger "github.com/swaggo/http-swagger/v2"
)

// Route binds a GET path to its handler.
type Route struct {
	Path   string
	Handle httprouter.Handle
}

// OpsRoutes lists the internal operations endpoints. The profiling
// ones are included only when enabled from the configuration.
func (api *APIHandler) OpsRoutes() []Route {
	routes := []Route{
		{"/ops/configs", api.GetConfigs},
		{"/ops/stats", api.GetStatistics},
		{"/ops/maintenance", api.Maintenance},
		{"/ops/debug/vars", GetMemStats},
		{"/ops/debug/gc", api.RunGC},
		{"/ops/debug/fos", api.FreeOSMemory},
	}
	if !api.config.ProfilerEndpointsEnable {
		return routes
	}

	routes = append(routes,
		Route{"/ops/debug/pprof/", api.OpsHandlerWrapper(http.HandlerFunc(pprof.Index))},
		Route{"/ops/debug/pprof/profile", api.GetCPUProfile},
		Route{"/ops/debug/pprof/trace", api.GetTraceProfile},
		Route{"/ops/debug/pprof/symbol", api.GetSymbol},
		Route{"/ops/debug/pprof/cmdline", api.GetCmdLine},
	)
	for _, name := range []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"} {
		routes = append(routes, Route{"/ops/debug/pprof/" + name, api.OpsHandlerWrapper(pprof.Handler(name))})
	}
	return routes
}

// SetupOpsRoutes injects internal operations related endpoints.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	for _, route := range api.OpsRoutes() {
		router.GET(route.Path, m.ops(route.Handle))
	}
	return router
}

// SetupDocsRoutes serves the books api swagger documentation. It goes
// through the public stack since the docs describe the public endpoints.
func (api *APIHandler) SetupDocsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/swagger/*any", m.public(api.OpsHandlerWrapper(httpswagger.WrapHandler)))
	return router
}
