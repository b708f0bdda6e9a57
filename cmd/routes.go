package main

import (
	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"net/http"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)

	mux := pat.New()

	// IAP
	mux.Post("/iap/verify", http.HandlerFunc(app.receiptHandler.VerifyReceipt))
	mux.Get("/iap/subscription", http.HandlerFunc(app.receiptHandler.SubscriptionStatus))

	mux.Get("/health", http.HandlerFunc(app.receiptHandler.Health))

	return standardMiddleware.Then(mux)
}
