package models

import (
	"time"
)

// ReportDump stores the latest report JSON for a card, keyed by name and number
type ReportDump struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CardKey   string    `json:"card_key" gorm:"uniqueIndex;not null"`
	RunID     string    `json:"run_id" gorm:"index"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Grade     string    `json:"grade"`
	Category  Category  `json:"category"`
	Payload   string    `json:"-" gorm:"type:text"`
	FilePath  string    `json:"file_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportHistoryResponse is the API response for stored reports
type ReportHistoryResponse struct {
	Reports []ReportDump `json:"reports"`
	Count   int          `json:"count"`
}

// DumpCardInfo is the identity as written to report_data.json, with the report image
type DumpCardInfo struct {
	CardIdentity
	ImgURL string `json:"img_url"`
}

// ReportData is the on-disk dump of a run: the identity and the full,
// unfiltered records of each marketplace.
type ReportData struct {
	CardInfo    DumpCardInfo  `json:"card_info"`
	SNKRRecords []PriceRecord `json:"snkr_records"`
	PCRecords   []PriceRecord `json:"pc_records"`
	PCURL       string        `json:"pc_url,omitempty"`
	SNKRURL     string        `json:"snkr_url,omitempty"`
	USDToJPY    float64       `json:"usd_to_jpy,omitempty"`
	Lang        string        `json:"lang,omitempty"`
}

// Records returns the full records dumped for a marketplace
func (d *ReportData) Records(m Marketplace) []PriceRecord {
	if m == MarketplaceSNKRDUNK {
		return d.SNKRRecords
	}
	return d.PCRecords
}

// URL returns the product URL dumped for a marketplace
func (d *ReportData) URL(m Marketplace) string {
	if m == MarketplaceSNKRDUNK {
		return d.SNKRURL
	}
	return d.PCURL
}
