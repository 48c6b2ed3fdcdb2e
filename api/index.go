package handler

import (
	"log"
	"net/http"
	"sync"

	_ "github.com/amirasaad/topupledger/docs"
	"github.com/amirasaad/topupledger/infra/initializer"
	"github.com/amirasaad/topupledger/pkg/app"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/webapi"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var (
	once    sync.Once
	handler http.HandlerFunc
)

// Handler is the serverless entry point. The application is built on the
// first invocation and reused by warm instances.
func Handler(w http.ResponseWriter, r *http.Request) {
	// This is needed to set the proper request path in `*fiber.Ctx`
	r.RequestURI = r.URL.String()

	once.Do(func() { handler = build() })
	handler.ServeHTTP(w, r)
}

func build() http.HandlerFunc {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load application configuration: %v", err)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		log.Fatalf("failed to initialize dependencies: %v", err)
	}
	a := app.New(deps, cfg)
	return adaptor.FiberApp(webapi.SetupApp(a))
}
