// Package webapi provides the public API for embedding the service.
// This is the stable API for external consumers.
package webapi

import (
	"github.com/tjfontaine/webapi-sample/internal/runtime"
)

// App is the assembled service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New assembles an App with the given options.
// Example:
//
//	app, err := webapi.New(
//	    webapi.WithConfigFile("config.yaml"),
//	    webapi.WithLogger(logger),
//	)
var New = runtime.New

// Configuration options
var (
	WithConfigFile          = runtime.WithConfigFile
	WithConfig              = runtime.WithConfig
	WithLogger              = runtime.WithLogger
	WithRegisterer          = runtime.WithRegisterer
	WithInterceptorRegistry = runtime.WithInterceptorRegistry
	WithJournal             = runtime.WithJournal
	WithTransport           = runtime.WithTransport
	WithListener            = runtime.WithListener
)
