package collab

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"saturuang/internal/collab/model"
)

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#469990",
	"#9a6324", "#800000", "#808000", "#000075",
}

// ColorFor picks a stable palette colour for a user id.
func ColorFor(userID string) string {
	return palette[xxhash.Sum64String(userID)%uint64(len(palette))]
}

// ResolveIdentity fills in whatever the caller left blank: a random id, a
// guest name derived from it and a colour derived from the id.
func ResolveIdentity(id model.Identity) model.Identity {
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	}
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		short := id.UserID
		if len(short) > 4 {
			short = short[:4]
		}
		id.Name = "Guest-" + short
	}
	if id.Color == "" {
		id.Color = ColorFor(id.UserID)
	}
	return id
}

// IdentityFromClaims builds an identity from a verified access token.
func IdentityFromClaims(claims jwt.MapClaims) model.Identity {
	id := model.Identity{UserID: model.String(claims["sub"])}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		id.Name = firstNonEmpty(model.String(meta["full_name"]), model.String(meta["name"]))
		id.Color = model.String(meta["color"])
	}
	if id.Name == "" {
		if email := model.String(claims["email"]); email != "" {
			id.Name, _, _ = strings.Cut(email, "@")
		}
	}
	return ResolveIdentity(id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
