package database

import (
	"fmt"

	"tanaoroshi/model"
)

// GetCountSummary は進捗と差異 (期待数量と実数量の差) をサーバー側で集計します。
func GetCountSummary(dbtx DBTX, session *model.CountSession) (*model.CountSummary, error) {
	summary := &model.CountSummary{
		CountID:       session.ID,
		Status:        session.Status,
		Discrepancies: []model.CountDiscrepancy{},
	}

	err := dbtx.Get(&summary.TotalItems, `
		SELECT COUNT(*) FROM count_items WHERE count_id = ?`, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count total items for count %d: %w", session.ID, err)
	}

	err = dbtx.Get(&summary.CountedItems, `
		SELECT COUNT(*) FROM count_items WHERE count_id = ? AND counted = 1`, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count counted items for count %d: %w", session.ID, err)
	}

	// 差異行: 計上済みで期待数量と一致しないもの、および未計上で期待数量 > 0 のもの
	err = dbtx.Select(&summary.Discrepancies, `
		SELECT
			ci.id,
			ci.product_code,
			pm.product_name,
			ci.expected_qty,
			IFNULL(ci.counted_qty, 0) AS counted_qty,
			IFNULL(ci.counted_qty, 0) - ci.expected_qty AS difference
		FROM count_items AS ci
		LEFT JOIN product_master AS pm ON ci.product_code = pm.product_code
		WHERE ci.count_id = ?
		  AND IFNULL(ci.counted_qty, 0) != ci.expected_qty
		ORDER BY ci.id`, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to select discrepancies for count %d: %w", session.ID, err)
	}

	for _, d := range summary.Discrepancies {
		if d.Difference < 0 {
			summary.TotalShortage += -d.Difference
		} else {
			summary.TotalOverage += d.Difference
		}
	}

	return summary, nil
}
