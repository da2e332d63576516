package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"chargebroker/internal/models"
)

// bidView is the settling-relevant projection of an offer row. Index points
// back into the offer slice it was built from.
type bidView struct {
	index      int
	bid        *decimal.Decimal
	receivedTs *time.Time
}

func spotBidViews(offers []models.SpotOffer) []bidView {
	views := make([]bidView, len(offers))
	for i, o := range offers {
		views[i] = bidView{index: i, bid: o.Offer, receivedTs: o.ReceivedTs}
	}
	return views
}

func reservationBidViews(offers []models.ReservationOffer) []bidView {
	views := make([]bidView, len(offers))
	for i, o := range offers {
		views[i] = bidView{index: i, bid: o.Offer, receivedTs: o.ReceivedTs}
	}
	return views
}

// auctionCloseable reports whether an auction may be settled now. An auction
// closes when its bidding window has ended, or when every invited
// counterparty has bid and each bid has been stable for the change grace.
func auctionCloseable(a models.Auction, offers []bidView, now time.Time, grace time.Duration) bool {
	if a.AuctionEndTs.Before(now) {
		return true
	}
	for _, o := range offers {
		if o.bid == nil {
			return false
		}
		if o.receivedTs != nil && o.receivedTs.Add(grace).After(now) {
			return false
		}
	}
	return true
}

// validBid reports whether a bid can win the auction. Without auto accept the
// initiator's max accepted price is a hard ceiling; a missing ceiling admits
// no bid at all.
func validBid(a models.Auction, o bidView) bool {
	if o.bid == nil {
		return false
	}
	if a.AutoAccept {
		return true
	}
	if a.MaxAcceptedPrice == nil {
		return false
	}
	return o.bid.LessThanOrEqual(*a.MaxAcceptedPrice)
}

// rankBids returns the indices of valid bids, cheapest first. Ties on price
// go to the earlier bid; missing timestamps sort last. The sort is stable so
// fully tied bids keep their seeding order.
func rankBids(a models.Auction, offers []bidView) []int {
	var valid []bidView
	for _, o := range offers {
		if validBid(a, o) {
			valid = append(valid, o)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].bid.Equal(*valid[j].bid) {
			return valid[i].bid.LessThan(*valid[j].bid)
		}
		ti, tj := valid[i].receivedTs, valid[j].receivedTs
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	ranked := make([]int, len(valid))
	for i, o := range valid {
		ranked[i] = o.index
	}
	return ranked
}
