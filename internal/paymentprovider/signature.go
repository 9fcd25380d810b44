package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature заголовок x-signature отсутствует, не совпадает или устарел.
var ErrBadSignature = errors.New("invalid webhook signature")

// SignatureTolerance допустимое расхождение ts подписи с текущим временем.
const SignatureTolerance = 5 * time.Minute

// VerifySignature проверяет заголовок x-signature уведомления MercadoPago
// ("ts=<unix>,v1=<hex hmac>"). Подписывается строка
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;", пустые части опускаются.
// Подпись с ts дальше SignatureTolerance от now отклоняется.
func VerifySignature(secret, signature, requestID, dataID string, now time.Time) error {
	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return ErrBadSignature
	}

	signedAt, err := parseSignatureTime(ts)
	if err != nil {
		return fmt.Errorf("%w: ts %q: %w", ErrBadSignature, ts, err)
	}
	if d := now.Sub(signedAt); d > SignatureTolerance || d < -SignatureTolerance {
		return fmt.Errorf("%w: signed at %s, %s away from now", ErrBadSignature,
			signedAt.Format(time.RFC3339), d.Round(time.Second))
	}
	return nil
}

// parseSignatureTime принимает ts в секундах или миллисекундах.
func parseSignatureTime(ts string) (time.Time, error) {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		// буквенные id MercadoPago подписывает в нижнем регистре
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
