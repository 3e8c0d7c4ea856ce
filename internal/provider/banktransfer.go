package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"qrpay-intent-api/internal/utils"
)

const (
	bankTransferName = "bank_transfer"

	statusMaxAttempts = 3
	statusRetryBase   = 1 * time.Second

	defaultExpireWindow = 15 * time.Minute
)

// BankTransferConfig is the settlement account and API credentials, bound at
// construction.
type BankTransferConfig struct {
	BankCode       string
	AccountNumber  string
	AccountName    string
	ApiKey         string
	ApiUrl         string
	TransferPrefix string
	Timeout        time.Duration
	RetryBase      time.Duration
	ExpireWindow   time.Duration
}

// BankTransferProvider builds VietQR-style transfer payloads locally and
// verifies inbound webhook credentials. The only network call is the optional
// status polling fallback.
type BankTransferProvider struct {
	cfg    BankTransferConfig
	client *http.Client
}

func NewBankTransferProvider(cfg BankTransferConfig) *BankTransferProvider {
	if cfg.TransferPrefix == "" {
		cfg.TransferPrefix = "DH"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = statusRetryBase
	}
	if cfg.ExpireWindow <= 0 {
		cfg.ExpireWindow = defaultExpireWindow
	}
	return &BankTransferProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *BankTransferProvider) Name() string { return bankTransferName }

// CreateIntent derives the transfer reference from the order id and builds the
// compact QR string plus a generic deep link. Pure payload construction, no
// remote persistence.
func (p *BankTransferProvider) CreateIntent(req IntentRequest) (*IntentPayload, error) {
	if !req.Amount.IsPositive() {
		return nil, &Error{Kind: KindInvalidRequest, Message: "amount must be positive"}
	}
	content := p.cfg.TransferPrefix + strconv.FormatUint(req.OrderID, 10)
	amount := req.Amount.String()

	// bank quick-transfer compact format: version|service|bank|account|name|amount|x|y|memo
	qr := strings.Join([]string{
		"2", "99",
		p.cfg.BankCode,
		p.cfg.AccountNumber,
		p.cfg.AccountName,
		amount,
		"0", "0",
		content,
	}, "|")

	deepLink := fmt.Sprintf("https://dl.vietqr.io/pay?app=default&bank=%s&acc=%s&am=%s&tm=%s",
		url.QueryEscape(p.cfg.BankCode),
		url.QueryEscape(p.cfg.AccountNumber),
		url.QueryEscape(amount),
		url.QueryEscape(content),
	)

	return &IntentPayload{
		TransferContent: content,
		QRContent:       qr,
		DeepLink:        deepLink,
		BankCode:        p.cfg.BankCode,
		AccountNumber:   p.cfg.AccountNumber,
		AccountName:     p.cfg.AccountName,
		ExpiresIn:       p.cfg.ExpireWindow,
		Raw: map[string]interface{}{
			"transfer_content": content,
			"qr_content":       qr,
			"deep_link":        deepLink,
			"expires_in_sec":   int(p.cfg.ExpireWindow.Seconds()),
		},
	}, nil
}

// VerifyWebhookSignature checks the bearer-style credential the provider sends
// with each webhook. Constant-time compare; a mismatch is a permanent
// rejection, never retried.
func (p *BankTransferProvider) VerifyWebhookSignature(authorization string) bool {
	const scheme = "Apikey "
	if len(authorization) < len(scheme) || !strings.EqualFold(authorization[:len(scheme)], scheme) {
		return false
	}
	token := strings.TrimSpace(authorization[len(scheme):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(p.cfg.ApiKey)) == 1
}

// GetRemoteStatus polls the provider for a transfer. Up to 3 attempts with
// 1s/2s/4s delays; retries only on no-response, 5xx or 429.
func (p *BankTransferProvider) GetRemoteStatus(ctx context.Context, transferContent string) (*RemoteStatus, error) {
	var result *RemoteStatus
	err := utils.DoWithBackoff(ctx, statusMaxAttempts, p.cfg.RetryBase, func(attempt int) (bool, error) {
		st, err := p.fetchStatus(ctx, transferContent)
		if err != nil {
			var pe *Error
			if perr, ok := err.(*Error); ok {
				pe = perr
			} else {
				pe = &Error{Kind: KindGeneric, Message: err.Error(), Err: err}
			}
			return pe.Retryable(), pe
		}
		result = st
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *BankTransferProvider) fetchStatus(ctx context.Context, transferContent string) (*RemoteStatus, error) {
	endpoint := strings.TrimRight(p.cfg.ApiUrl, "/") + "/v1/transactions?reference=" + url.QueryEscape(transferContent)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Apikey "+p.cfg.ApiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		var st RemoteStatus
		if err := json.Unmarshal(body, &st); err != nil {
			return nil, &Error{Kind: KindGeneric, StatusCode: resp.StatusCode,
				Message: "decode response failed: " + err.Error(), Err: err}
		}
		return &st, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Message: string(body)}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: string(body)}
	case resp.StatusCode >= 400:
		return nil, &Error{Kind: KindInvalidRequest, StatusCode: resp.StatusCode, Message: string(body)}
	default:
		return nil, &Error{Kind: KindGeneric, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
