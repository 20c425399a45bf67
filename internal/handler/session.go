package handler

import (
	"fmt"
	"net/http"

	"github.com/dunglas/httpsfv"

	"merch-storefront/internal/identity"
	"merch-storefront/internal/middleware"
	"merch-storefront/internal/model"
	"merch-storefront/internal/session"
)

// SessionHeader identifies the buyer session (RFC 8941 Dictionary).
//
// Examples:
//   - id="3f1c…"             → existing session
//   - id="3f1c…", name="ghost" → existing session, customer name "ghost"
//   - absent                 → new session; the response header carries its id
const SessionHeader = "Storefront-Session"

// TelegramHeader carries the Telegram Web App initData query string verbatim.
const TelegramHeader = "Telegram-Init-Data"

// sessionParams is the parsed SessionHeader.
type sessionParams struct {
	ID   string
	Name string
}

// parseSessionHeader reads the id and name members. Both are optional and may
// be strings or tokens; parameters on either are ignored.
func parseSessionHeader(header string) (sessionParams, error) {
	var p sessionParams
	if header == "" {
		return p, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return p, fmt.Errorf("invalid %s header: %w", SessionHeader, err)
	}

	if p.ID, err = dictString(dict, "id"); err != nil {
		return p, err
	}
	if p.Name, err = dictString(dict, "name"); err != nil {
		return p, err
	}
	return p, nil
}

func dictString(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	switch v := item.Value.(type) {
	case string:
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// FormatSessionHeader renders the header value for a session id.
func FormatSessionHeader(id string) string {
	dict := httpsfv.NewDictionary()
	dict.Add("id", httpsfv.NewItem(id))
	v, err := httpsfv.Marshal(dict)
	if err != nil {
		// Only non-ASCII ids fail to marshal and the registry never issues them
		return ""
	}
	return v
}

// resolveSession finds or creates the caller's session, refreshes its
// identity from the request and echoes the session header.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	params, err := parseSessionHeader(r.Header.Get(SessionHeader))
	if err != nil {
		return nil, model.NewValidationError(SessionHeader, "header is malformed")
	}

	s, created := h.sessions.GetOrCreate(params.ID)
	if created {
		h.logger.Debug("session started", "session", s.ID)
	}
	if p := h.identityFor(r.Header.Get(TelegramHeader), params.Name); p != nil {
		s.SetIdentity(p)
	}

	w.Header().Set(SessionHeader, FormatSessionHeader(s.ID))
	middleware.SetSession(r.Context(), s.ID)
	return s, nil
}

// identityFor prefers Telegram init data over a self-reported name.
// Returns nil when the request names nobody, leaving the session's identity as is.
func (h *Handler) identityFor(initData, name string) identity.Provider {
	var chain identity.Chain
	if initData != "" {
		chain = append(chain, identity.Telegram{InitData: initData, BotToken: h.botToken, MaxAge: h.maxAge})
	}
	if name != "" {
		chain = append(chain, identity.Static(name))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
