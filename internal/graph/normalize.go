package graph

import (
	"log/slog"
	"net/url"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a file name. Browsers on macOS send
// NFD names, and OneDrive treats the two forms as different files.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// normalizeChildren prepares one folder's children for the enumerator.
// Names are percent-decoded and NFC'd, OneNote packages are dropped (they
// carry a folder facet), and repeated IDs from overlapping pages are
// collapsed keeping Graph's order.
func normalizeChildren(items []Item, logger *slog.Logger) []Item {
	seen := make(map[string]struct{}, len(items))
	kept := items[:0]
	dupes := 0

	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			dupes++
			continue
		}

		seen[it.ID] = struct{}{}

		if decoded, err := url.PathUnescape(it.Name); err == nil {
			it.Name = decoded
		} else {
			logger.Debug("keeping undecodable item name", slog.String("item_id", it.ID), slog.String("name", it.Name))
		}

		it.Name = NormalizeName(it.Name)

		if it.IsPackage {
			logger.Debug("skipping package item", slog.String("item_id", it.ID), slog.String("name", it.Name))
			continue
		}

		kept = append(kept, it)
	}

	if dupes > 0 {
		logger.Info("dropped duplicate children", slog.Int("duplicate_count", dupes), slog.Int("remaining_count", len(kept)))
	}

	return kept
}
