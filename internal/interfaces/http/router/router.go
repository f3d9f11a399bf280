// Package router mounts the payroll API on a gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts its routes on the versioned API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version> behind the API middleware
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

type RouterOption func(*Router)

func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.apiVersion = version }
}

// WithAPIMiddleware runs mw on versioned routes only. Health routes mounted by
// SystemRoutes stay outside it.
func WithAPIMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) { r.middleware = append(r.middleware, mw...) }
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, reg := range r.registrars {
		reg.RegisterRoutes(api)
	}
}

// ResourceGroup is the route table of one API resource, e.g. /employees.
type ResourceGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

func NewResourceGroup(prefix string, mw ...gin.HandlerFunc) *ResourceGroup {
	return &ResourceGroup{prefix: prefix, middleware: mw}
}

func (g *ResourceGroup) add(method, path string, handlers []gin.HandlerFunc) *ResourceGroup {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

func (g *ResourceGroup) GET(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.add(http.MethodGet, path, h)
}

func (g *ResourceGroup) POST(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.add(http.MethodPost, path, h)
}

func (g *ResourceGroup) PUT(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.add(http.MethodPut, path, h)
}

func (g *ResourceGroup) DELETE(path string, h ...gin.HandlerFunc) *ResourceGroup {
	return g.add(http.MethodDelete, path, h)
}

func (g *ResourceGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		group.Handle(r.method, r.path, r.handlers...)
	}
}
