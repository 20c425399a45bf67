package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TELEGRAM WEB APP IDENTITY
// =============================================================================
//
// The storefront runs inside a Telegram Web App. Telegram hands the page an
// initData query string containing the user object, auth_date and a hash.
// The page forwards it verbatim in the Telegram-Init-Data header.
//
// Verification (https://core.telegram.org/bots/webapps):
//
//   secret_key       = HMAC_SHA256(key="WebAppData", msg=bot_token)
//   data_check_string = sorted "key=value" pairs except hash, joined by "\n"
//   valid            = hex(HMAC_SHA256(key=secret_key, msg=data_check_string)) == hash
//
// Without a configured bot token the data is used unverified; it only
// supplies a display name, never authorization.
// =============================================================================

// TelegramUser is the subset of the Telegram user object the storefront reads.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// InitData is parsed Telegram Web App init data.
type InitData struct {
	User     *TelegramUser
	AuthDate time.Time
	Hash     string
	values   url.Values
}

// ErrInvalidSignature means the init data hash did not match the bot token.
var ErrInvalidSignature = errors.New("telegram init data signature mismatch")

// ParseInitData parses the raw initData query string.
func ParseInitData(raw string) (*InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoIdentity
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	d := &InitData{Hash: values.Get("hash"), values: values}

	if userJSON := values.Get("user"); userJSON != "" {
		var u TelegramUser
		if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
			return nil, fmt.Errorf("parse init data user: %w", err)
		}
		d.User = &u
	}

	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse auth_date: %w", err)
		}
		d.AuthDate = time.Unix(sec, 0).UTC()
	}

	return d, nil
}

// Verify checks the init data hash against botToken.
func (d *InitData) Verify(botToken string) error {
	if d.Hash == "" {
		return ErrInvalidSignature
	}
	want, err := hex.DecodeString(d.Hash)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(signInitData(d.values, botToken), want) {
		return ErrInvalidSignature
	}
	return nil
}

// signInitData computes the Telegram init data signature.
func signInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}

// DisplayName picks username, then first name.
func (d *InitData) DisplayName() string {
	if d.User == nil {
		return ""
	}
	if d.User.Username != "" {
		return d.User.Username
	}
	return d.User.FirstName
}

// Telegram provides a display name from Telegram Web App init data.
type Telegram struct {
	InitData string
	BotToken string        // Empty disables signature verification
	MaxAge   time.Duration // Zero disables the freshness check
	Now      func() time.Time
}

// DisplayName implements Provider.
func (t Telegram) DisplayName(ctx context.Context) (string, error) {
	d, err := ParseInitData(t.InitData)
	if err != nil {
		return "", err
	}
	if t.BotToken != "" {
		if err := d.Verify(t.BotToken); err != nil {
			return "", err
		}
	}
	if t.MaxAge > 0 && !d.AuthDate.IsZero() {
		now := time.Now
		if t.Now != nil {
			now = t.Now
		}
		if now().Sub(d.AuthDate) > t.MaxAge {
			return "", fmt.Errorf("telegram init data expired at %s", d.AuthDate.Add(t.MaxAge).Format(time.RFC3339))
		}
	}
	name := d.DisplayName()
	if name == "" {
		return "", ErrNoIdentity
	}
	return name, nil
}
