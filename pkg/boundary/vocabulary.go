package boundary

import (
	"sort"
	"strings"

	"github.com/pokercore/holdemd/internal/domain"
)

// The engine accounts for poker chips and nothing else. In strict mode the
// boundary scans caller metadata for vocabulary that would smuggle
// currency, wallet, payment or external-ledger concepts into entries.

// forbiddenKeywords are matched as substrings, case-insensitively, against
// metadata keys and string values.
var forbiddenKeywords = []string{
	"currency",
	"wallet",
	"payment",
	"payout",
	"crypto",
	"blockchain",
	"bitcoin",
	"btc",
	"ethereum",
	"eth",
	"usd",
	"usdt",
	"usdc",
	"stablecoin",
	"token",
	"fiat",
	"cash",
	"bank",
	"iban",
	"swift",
	"deposit",
	"withdraw",
	"transfer",
	"remittance",
	"invoice",
	"txhash",
	"tx_hash",
	"onchain",
	"on-chain",
}

// forbiddenKeys are rejected as exact metadata keys regardless of value.
var forbiddenKeys = map[string]bool{
	"currency":      true,
	"currencyCode":  true,
	"wallet":        true,
	"walletAddress": true,
	"paymentMethod": true,
	"paymentId":     true,
	"bankAccount":   true,
	"cardNumber":    true,
	"iban":          true,
	"txHash":        true,
	"transactionId": true,
	"accountNumber": true,
}

// scanForbiddenVocabulary reports the first forbidden match for each
// metadata key and each value. A nil result means the metadata is clean.
func scanForbiddenVocabulary(metadata map[string]string) []ValidationError {
	var errs []ValidationError

	for _, key := range sortedMetadataKeys(metadata) {
		value := metadata[key]

		if forbiddenKeys[key] {
			errs = append(errs, validationError(domain.ErrForbiddenMetadata(
				"metadata key is on the forbidden list"), "metadata."+key))
			continue
		}

		if hit := firstForbiddenKeyword(key); hit != "" {
			errs = append(errs, validationError(domain.ErrForbiddenMetadata(
				`metadata key contains forbidden term "`+hit+`"`), "metadata."+key))
			continue
		}

		if hit := firstForbiddenKeyword(value); hit != "" {
			errs = append(errs, validationError(domain.ErrForbiddenMetadata(
				`metadata value contains forbidden term "`+hit+`"`), "metadata."+key))
		}
	}

	return errs
}

// firstForbiddenKeyword returns the first keyword found in s, or "".
func firstForbiddenKeyword(s string) string {
	lower := strings.ToLower(s)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// sortedMetadataKeys returns the metadata keys in stable order so scan
// results are deterministic.
func sortedMetadataKeys(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
