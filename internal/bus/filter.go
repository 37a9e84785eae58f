package bus

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
)

// VisibilityFilter passes only payloads whose MessageVisibility is in allowed.
// Payloads without the attribute pass.
func VisibilityFilter(allowed []string, next Handler, log *zap.Logger) Handler {
	log = logger.OrNop(log).Named("bus")
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[strings.ToUpper(v)] = true
	}

	return func(ctx context.Context, payload []byte) {
		body, attrs, err := Unwrap(payload)
		if err != nil {
			// Let the handler report it.
			next(ctx, payload)
			return
		}
		vis := attrs[AttrVisibility]
		if vis == "" {
			vis = gjson.GetBytes(body, AttrVisibility).String()
		}
		if vis != "" && !set[strings.ToUpper(vis)] {
			log.Debug("filtered by visibility", zap.String("visibility", vis))
			return
		}
		next(ctx, payload)
	}
}
