package services

import (
	"sort"
	"strconv"
	"time"

	"github.com/awa/go-iap/appstore"

	"receiptgate/internal/models"
)

// ResolveSubscriptionStatus derives the entitlement from the transaction
// history of a verified receipt (latest_receipt_info). It never fails: nil,
// empty or malformed input yields the inactive default.
func ResolveSubscriptionStatus(transactions []appstore.InApp) models.SubscriptionStatus {
	return resolveSubscriptionStatusAt(transactions, time.Now())
}

func resolveSubscriptionStatusAt(transactions []appstore.InApp, now time.Time) models.SubscriptionStatus {
	if len(transactions) == 0 {
		return models.SubscriptionStatus{}
	}

	sorted := make([]appstore.InApp, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return parseMillis(sorted[i].ExpiresDateMS) > parseMillis(sorted[j].ExpiresDateMS)
	})

	// The head is the most recently expiring transaction, not necessarily a
	// still-active one.
	status := models.SubscriptionStatus{LatestTransaction: &sorted[0]}

	nowMillis := now.UnixMilli()
	for i := range sorted {
		if parseMillis(sorted[i].ExpiresDateMS) > nowMillis {
			status.IsPremium = true
			break
		}
	}
	return status
}

// parseMillis reads an epoch-milliseconds string the way the App Store ships
// them. Missing, non-numeric or out-of-range values count as already expired.
func parseMillis(ms string) int64 {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
