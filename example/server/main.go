// Command server runs a demonstration authorization server wired to the
// in-memory stores, with a statically registered client.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/zitadel/logging"

	"github.com/datarightlab/fapi-op/internal/storage/memory"
	"github.com/datarightlab/fapi-op/internal/testutil"
	"github.com/datarightlab/fapi-op/pkg/oidc"
	"github.com/datarightlab/fapi-op/pkg/op"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9998"
	}
	issuer := os.Getenv("ISSUER")
	if issuer == "" {
		issuer = "http://localhost:" + port
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := memory.New()
	store.SetLogger(logger)
	defer store.Stop()

	keys := testutil.NewKeySet()
	store.RegisterClient(&memory.Client{
		ID:              "demo-client",
		RedirectURIList: []string{"https://client.example.org/callback"},
		GrantTypeList: []oidc.GrantType{
			oidc.GrantTypeCode,
			oidc.GrantTypeHybrid,
			oidc.GrantTypeRefreshToken,
		},
		ResponseTypeList: []oidc.ResponseType{
			oidc.ResponseTypeCode,
			oidc.ResponseTypeCodeIDToken,
		},
		AllowedScopes:     []string{oidc.ScopeOpenID, oidc.ScopeProfile, "bank:accounts.basic:read"},
		Keys:              keys.WebKeySet(),
		SoftwareProductID: "demo-software-product",
	})
	store.SetStatus("demo-software-product", op.StatusActive)

	config := op.NewConfig(issuer)
	config.SupportedScopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile, "bank:accounts.basic:read"}

	events := op.EventSinkFunc(func(kind op.EventKind, check op.ValidationCheck) {
		logger.Info("audit event", "kind", string(kind), "check", string(check))
	})

	provider := op.NewProvider(config, store, store, store, store,
		op.WithLogger(logger),
		op.WithEventSink(events),
		op.WithStatusLookup(store),
	)

	router := provider.CreateRouter(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logging.ToContext(r.Context(), logger)))
		})
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("listening", "addr", server.Addr, "issuer", issuer)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
