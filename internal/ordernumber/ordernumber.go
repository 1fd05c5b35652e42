// Package ordernumber рендерит отображаемый номер заказа вида CCCC-YYMMDD-SSSS.
//
// Номер вычисляется при чтении из (customer_code, created_at, sequence_number)
// и никогда не сохраняется отдельным полем. Дата берётся в UTC: один и тот же
// заказ даёт одинаковые цифры независимо от часового пояса читателя.
package ordernumber

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

const (
	// PlaceholderCode подставляется, если у владельца заказа ещё нет customer_code.
	PlaceholderCode = "0000"

	codeWidth     = 4
	sequenceWidth = 4
	dateLayout    = "060102"
	separator     = "-"
)

// ReferenceLocation — часовой пояс, в котором вычисляется YYMMDD.
var ReferenceLocation = time.UTC

// Parts — разобранный номер заказа.
type Parts struct {
	CustomerCode   *int64
	Date           time.Time
	SequenceNumber int64
}

// Format возвращает канонический номер заказа.
// Ширина полей минимальная: код 12345 выводится целиком, без усечения.
func Format(customerCode *int64, createdAt time.Time, sequenceNumber int64) (string, error) {
	// Код 0 совпал бы с PlaceholderCode, и Parse не смог бы их различить.
	if customerCode != nil && *customerCode <= 0 {
		return "", fmt.Errorf("%w: customer code %d is not positive", domain.ErrInvalidInput, *customerCode)
	}
	if sequenceNumber < 0 {
		return "", fmt.Errorf("%w: sequence number %d is negative", domain.ErrInvalidInput, sequenceNumber)
	}

	code := PlaceholderCode
	if customerCode != nil {
		code = fmt.Sprintf("%0*d", codeWidth, *customerCode)
	}

	var b strings.Builder
	b.Grow(codeWidth + len(dateLayout) + sequenceWidth + 2)
	b.WriteString(code)
	b.WriteString(separator)
	b.WriteString(createdAt.In(ReferenceLocation).Format(dateLayout))
	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("%0*d", sequenceWidth, sequenceNumber))
	return b.String(), nil
}

// MustFormat — вариант Format для путей, где входные данные уже прошли валидацию.
func MustFormat(customerCode *int64, createdAt time.Time, sequenceNumber int64) string {
	s, err := Format(customerCode, createdAt, sequenceNumber)
	if err != nil {
		panic(err)
	}
	return s
}

// ForOrder рендерит номер для заказа и кода его владельца.
func ForOrder(view domain.OrderView) (string, error) {
	return Format(view.CustomerCode, view.CreatedAt, view.SequenceNumber)
}

// Parse разбирает номер обратно на составляющие (используется саппортом и админкой).
// Код 0000 возвращается как nil.
func Parse(s string) (Parts, error) {
	fields := strings.Split(strings.TrimSpace(s), separator)
	if len(fields) != 3 {
		return Parts{}, fmt.Errorf("%w: order number %q must have three segments", domain.ErrInvalidInput, s)
	}

	codeRaw, dateRaw, seqRaw := fields[0], fields[1], fields[2]
	if len(codeRaw) < codeWidth || !isDigits(codeRaw) {
		return Parts{}, fmt.Errorf("%w: malformed customer code segment %q", domain.ErrInvalidInput, codeRaw)
	}
	if len(seqRaw) < sequenceWidth || !isDigits(seqRaw) {
		return Parts{}, fmt.Errorf("%w: malformed sequence segment %q", domain.ErrInvalidInput, seqRaw)
	}
	if len(dateRaw) != len(dateLayout) || !isDigits(dateRaw) {
		return Parts{}, fmt.Errorf("%w: malformed date segment %q", domain.ErrInvalidInput, dateRaw)
	}

	date, err := time.ParseInLocation(dateLayout, dateRaw, ReferenceLocation)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: parse date segment: %v", domain.ErrInvalidInput, err)
	}
	seq, err := strconv.ParseInt(seqRaw, 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: parse sequence segment: %v", domain.ErrInvalidInput, err)
	}

	parts := Parts{Date: date, SequenceNumber: seq}
	if codeRaw != PlaceholderCode {
		code, err := strconv.ParseInt(codeRaw, 10, 64)
		if err != nil {
			return Parts{}, fmt.Errorf("%w: parse customer code segment: %v", domain.ErrInvalidInput, err)
		}
		parts.CustomerCode = &code
	}

	return parts, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
