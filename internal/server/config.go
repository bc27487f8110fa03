package server

import (
	"github.com/raysh454/netmon/internal/app"
	"github.com/raysh454/netmon/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// App provides the store, monitor, archive and check jobs. Required.
	App *app.Application

	Logger logging.Logger
}
