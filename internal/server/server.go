// Package server is the HTTP surface of the diagnostics backend: device
// lookup, catalog browsing, product-row writes and the submission
// endpoint, all thin wrappers over the gateway and the diagnostics flow.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/config"
	"github.com/GamechangerTeam/geokurs-form/internal/diagnostics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Submitter processes one diagnostics submission.
type Submitter interface {
	Submit(ctx context.Context, sub diagnostics.Submission) (diagnostics.Result, error)
}

// Catalog is the slice of the gateway the plain CRUD routes use.
type Catalog interface {
	FindDevicesBySerial(ctx context.Context, serial string) ([]bitrix.Device, error)
	SearchProductsByName(ctx context.Context, query string) ([]bitrix.Product, error)
	ProductsFromSections(ctx context.Context, sectionIDs []int) ([]bitrix.Product, error)
	MoveDeviceToStage(ctx context.Context, deviceID int, stageID string) error
	SetDeviceProductRows(ctx context.Context, deviceID int, rows []bitrix.DeviceRow) error
	GetDealProductRows(ctx context.Context, dealID int) ([]bitrix.ProductRow, error)
	SetDealProductRows(ctx context.Context, dealID int, rows []bitrix.ProductRow) error
}

type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	diag    Submitter
	catalog Catalog
	httpSrv *http.Server
}

func New(cfg config.Config, diag Submitter, catalog Catalog, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		diag:    diag,
		catalog: catalog,
	}
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Router(),
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	base := r.PathPrefix(strings.TrimRight(s.cfg.BasePath, "/")).Subrouter()

	base.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	base.HandleFunc("/api/device/by-serial/{serial}", s.handleDeviceBySerial).Methods(http.MethodGet)
	base.HandleFunc("/api/products/search", s.handleProductSearch).Methods(http.MethodGet)
	base.HandleFunc("/api/products/sections", s.handleProductSections).Methods(http.MethodGet)
	base.HandleFunc("/api/products/sections/{sectionId}", s.handleProductSection).Methods(http.MethodGet)
	base.HandleFunc("/api/diagnostics", s.handleDiagnostics).Methods(http.MethodPost)
	base.HandleFunc("/api/ship", s.handleShip).Methods(http.MethodPost)
	base.HandleFunc("/api/item/{itemId}/productrows/set", s.handleItemRowsSet).Methods(http.MethodPost)
	base.HandleFunc("/api/deal/{dealId}/productrows/set", s.handleDealRowsSet).Methods(http.MethodPost)
	base.HandleFunc("/api/deal/{dealId}/productrows/add", s.handleDealRowsAdd).Methods(http.MethodPost)
	base.HandleFunc("/init/", s.handleInit).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "NOT_FOUND"})
	})

	var handler http.Handler = r
	handler = s.accessLog(handler)
	handler = corsAllowAll(handler)
	return handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		zap.String("addr", s.httpSrv.Addr),
		zap.String("basePath", s.cfg.BasePath),
	)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
