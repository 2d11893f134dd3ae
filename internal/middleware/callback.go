package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/pkg/api"
)

// CallbackSignatureHeader carries the payment notifier's HMAC signature.
const CallbackSignatureHeader = "X-Callback-Signature"

var ErrBadSignature = errors.New("missing or invalid callback signature")

// SignCallback returns hex(HMAC-SHA256(secret, transactionID + ":" + status)).
func SignCallback(secret, transactionID, status string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(transactionID + ":" + status))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback reports whether signature matches the callback fields.
// An empty secret disables verification.
func VerifyCallback(secret, transactionID, status, signature string) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignCallback(secret, transactionID, status))
	return hmac.Equal(got, want)
}

// CallbackAuth returns an interceptor that rejects unsigned SettlePayment calls when
// secret is set. Other procedures pass through.
func CallbackAuth(secret string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if secret == "" {
				return next(ctx, req)
			}
			msg, ok := req.Any().(*api.SettlePaymentRequest)
			if !ok {
				return next(ctx, req)
			}
			if !VerifyCallback(secret, msg.TransactionID, msg.Status, req.Header().Get(CallbackSignatureHeader)) {
				return nil, connect.NewError(connect.CodeUnauthenticated, ErrBadSignature)
			}
			return next(ctx, req)
		}
	}
}
