package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/tokens"
)

var perThousand = decimal.NewFromInt(1000)

// Calculator converts token usage into cost and enforces context-window
// budgets using the pricing table.
type Calculator struct {
	table *Table
}

// NewCalculator returns a calculator backed by the given table.
func NewCalculator(table *Table) *Calculator {
	return &Calculator{table: table}
}

// Cost prices a completion: (prompt/1000)*input + (completion/1000)*output,
// entirely in decimal arithmetic.
func (c *Calculator) Cost(promptTokens, completionTokens int, model string) decimal.Decimal {
	row := c.table.Resolve(model)

	prompt := decimal.NewFromInt(int64(promptTokens)).Div(perThousand).Mul(row.InputCostPer1K)
	completion := decimal.NewFromInt(int64(completionTokens)).Div(perThousand).Mul(row.OutputCostPer1K)

	return prompt.Add(completion)
}

// CheckContextLimit reports whether the conversation plus the requested
// completion budget fits the model's context window, and how many prompt
// tokens of headroom remain.
func (c *Calculator) CheckContextLimit(messages []models.Message, model string, maxCompletionTokens int) (bool, int, error) {
	estimated, err := tokens.EstimateMessages(messages)
	if err != nil {
		return false, 0, err
	}

	row := c.table.Resolve(model)
	remaining := (row.ContextWindow - maxCompletionTokens) - estimated

	return remaining >= 0, remaining, nil
}
