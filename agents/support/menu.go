package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/store"
)

const (
	popularLimit = 3
	listingFetch = 20
	listingShown = 10
)

func (a *Agent) popularity(ctx context.Context, log *logger.Logger, in intent.Popularity) Draft {
	names := a.topItems(ctx, log, in.Category, popularLimit)
	if len(names) == 0 {
		if in.Category != "" {
			return a.categoryListing(ctx, log, intent.CategoryListing{Category: in.Category})
		}
		return plain("I don't have enough order data yet to say what's popular. Ask me about any category, like salads or desserts.")
	}
	if in.Category != "" {
		return grounded(fmt.Sprintf("Our most-ordered %s right now: %s.", store.CategoryLabel(in.Category), strings.Join(names, ", ")), names)
	}
	return grounded("Top items customers are ordering: "+strings.Join(names, ", ")+".", names)
}

// topItems ranks by order history and falls back to the menu's popularity
// counters.
func (a *Agent) topItems(ctx context.Context, log *logger.Logger, category string, limit int) []string {
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	if a.orders != nil {
		names, err := a.orders.TopOrderedItems(ctx, category, limit)
		if err != nil {
			log.Warnf("top ordered items: %v", err)
		} else if len(names) > 0 {
			return names
		}
	}
	if a.menu == nil {
		return nil
	}
	names, err := a.menu.TopByPopularity(ctx, category, limit)
	if err != nil {
		log.Warnf("top by popularity: %v", err)
		return nil
	}
	return names
}

func (a *Agent) itemDetail(ctx context.Context, log *logger.Logger, in intent.ItemDetail) Draft {
	if a.menu == nil {
		return plain(menuOffline)
	}
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	matches, err := a.menu.Search(ctx, in.Query, store.DefaultTopK)
	if err != nil {
		log.Error("menu search failed", err)
		return plain(menuOffline)
	}
	if len(matches) == 0 {
		return plain(fmt.Sprintf("I couldn't find %q on our menu.", in.Query))
	}
	if store.NeedsDisambiguation(matches) {
		return disambiguate(matches)
	}
	it := matches[0].Item
	text := fmt.Sprintf("%s (%s) is %s.", it.Name, it.Category, money(it.Price))
	if it.Description != "" {
		text += " " + it.Description
		if !strings.HasSuffix(it.Description, ".") {
			text += "."
		}
	}
	return grounded(text, []string{it.Name})
}

func (a *Agent) categoryListing(ctx context.Context, log *logger.Logger, in intent.CategoryListing) Draft {
	if a.menu == nil {
		return plain(menuOffline)
	}
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	names, err := a.menu.ListByCategory(ctx, in.Category, listingFetch)
	if err != nil {
		log.Error("category listing failed", err)
		return plain(menuOffline)
	}
	label := store.CategoryLabel(in.Category)
	if len(names) == 0 {
		return plain(fmt.Sprintf("We don't have any %s options on the menu right now.", label))
	}
	if len(names) > listingShown {
		names = names[:listingShown]
	}
	return grounded(fmt.Sprintf("Our %s options include: %s.", label, strings.Join(names, ", ")), names)
}
