package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	qrPrefix     = "QR"
	qrSuffixLen  = 9
	qrSuffixBase = 36
)

// newQRCode returns QR-<unix millis>-<9 uppercase base36 characters>.
func newQRCode(now time.Time) (string, error) {
	var sb strings.Builder

	base := big.NewInt(qrSuffixBase)

	for range qrSuffixLen {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generating qr code: %w", err)
		}

		sb.WriteString(strconv.FormatInt(n.Int64(), qrSuffixBase))
	}

	return fmt.Sprintf("%s-%d-%s",
		qrPrefix, now.UnixMilli(), strings.ToUpper(sb.String())), nil
}
