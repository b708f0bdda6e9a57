package main

import (
	"log"
	"net/http"
	"receiptgate/internal/config"
	"receiptgate/internal/handlers"
	"receiptgate/internal/services"
	"time"
)

type application struct {
	errorLog       *log.Logger
	infoLog        *log.Logger
	receiptHandler *handlers.ReceiptHandler
}

func initializeApp(cfg config.Config, errorLog, infoLog *log.Logger) (*application, error) {
	var timeout time.Duration
	if cfg.AppStore.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.AppStore.TimeoutSeconds) * time.Second
	}

	appStoreService, err := services.NewAppStoreService(services.AppStoreConfig{
		SharedSecret: cfg.SharedSecret,
		Timeout:      timeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.PlayServiceAccountJSON != "" {
		infoLog.Println("Google Play credentials present; Play verification is not enabled")
	}

	receiptHandler := &handlers.ReceiptHandler{
		Service:        appStoreService,
		DefaultSandbox: cfg.AppStore.Environment == "sandbox",
	}

	return &application{
		errorLog:       errorLog,
		infoLog:        infoLog,
		receiptHandler: receiptHandler,
	}, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
