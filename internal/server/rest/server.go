package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type HTTPServer struct {
	address  string
	logger   logging.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	signers  SignerService
	signIn   SignInService
	resolver SignerResolver
	casts    CastService
}

// Services groups the core components the HTTP API calls into.
type Services struct {
	Signers  SignerService
	SignIn   SignInService
	Resolver SignerResolver
	Casts    CastService
}

func NewHTTPServer(a string, l logging.Logger, svc Services, m *metrics.Metrics, g prometheus.Gatherer) *HTTPServer {
	return &HTTPServer{
		address:  a,
		logger:   l.With("module", "http_server"),
		metrics:  m,
		gatherer: g,
		signers:  svc.Signers,
		signIn:   svc.SignIn,
		resolver: svc.Resolver,
		casts:    svc.Casts,
	}
}

// Handler builds the gin engine with every route registered.
func (s *HTTPServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/", s.hello)
	r.POST("/signer", s.createSigner)
	r.GET("/pollSigner", s.pollSigner)
	r.GET("/challenge", s.challenge)
	r.POST("/retrieveSigner", s.retrieveSigner)

	authed := r.Group("/", s.session())
	authed.POST("/cast", s.publishCast)
	authed.GET("/cast/:id", s.castStatus)
	authed.POST("/signer/:id/revoke", s.revokeSigner)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
