package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// NewsItem is one agency news entry.
type NewsItem struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Image   string `json:"image"`
	Date    string `json:"date"`
	Link    string `json:"link"`
}

// FallbackNews is served when no feed is configured or the feed is unreachable.
var FallbackNews = []NewsItem{
	{
		ID:      1,
		Title:   "BNN Kota Surabaya Gelar Sosialisasi P4GN di Sekolah",
		Excerpt: "BNN Kota Surabaya menggelar kegiatan sosialisasi Pencegahan dan Pemberantasan Penyalahgunaan dan Peredaran Gelap Narkotika (P4GN) di berbagai sekolah...",
		Image:   "https://via.placeholder.com/400x200/1E3A8A/FFFFFF?text=BNN+Surabaya",
		Date:    "15 November 2025",
		Link:    "https://surabayakota.bnn.go.id/berita/sosialisasi-p4gn",
	},
	{
		ID:      2,
		Title:   "Ratusan Warga Ikuti Tes Urine Gratis BNN",
		Excerpt: "Sebanyak 200 warga mengikuti kegiatan tes urine gratis yang diselenggarakan oleh BNN Kota Surabaya dalam rangka deteksi dini penyalahgunaan narkoba...",
		Image:   "https://via.placeholder.com/400x200/2563EB/FFFFFF?text=Tes+Urine",
		Date:    "12 November 2025",
		Link:    "https://surabayakota.bnn.go.id/berita/tes-urine-gratis",
	},
	{
		ID:      3,
		Title:   "BNN Tangkap Pengedar Narkoba di Wilayah Surabaya Timur",
		Excerpt: "Petugas BNN Kota Surabaya berhasil menangkap seorang pengedar narkoba jenis sabu-sabu di kawasan Surabaya Timur. Barang bukti yang disita...",
		Image:   "https://via.placeholder.com/400x200/DC2626/FFFFFF?text=Penangkapan",
		Date:    "10 November 2025",
		Link:    "https://surabayakota.bnn.go.id/berita/penangkapan-pengedar",
	},
	{
		ID:      4,
		Title:   "Webinar Anti Narkoba untuk Mahasiswa",
		Excerpt: "BNN Kota Surabaya mengadakan webinar bertema \"Generasi Bersih Narkoba\" yang diikuti oleh ratusan mahasiswa dari berbagai universitas di Surabaya...",
		Image:   "https://via.placeholder.com/400x200/059669/FFFFFF?text=Webinar",
		Date:    "8 November 2025",
		Link:    "https://surabayakota.bnn.go.id/berita/webinar-anti-narkoba",
	},
	{
		ID:      5,
		Title:   "Kampanye Say No To Drugs di Car Free Day",
		Excerpt: "Dalam rangka meningkatkan kesadaran masyarakat, BNN Kota Surabaya menggelar kampanye anti narkoba di acara Car Free Day Taman Bungkul...",
		Image:   "https://via.placeholder.com/400x200/7C3AED/FFFFFF?text=Kampanye",
		Date:    "5 November 2025",
		Link:    "https://surabayakota.bnn.go.id/berita/kampanye-cfd",
	},
}

// NewsClient fetches agency news from a JSON feed.
type NewsClient struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewNewsClient creates a client; an empty url always yields the fallback list.
func NewNewsClient(url string, logger *zap.Logger) *NewsClient {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &NewsClient{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Latest returns the feed, or the fallback list when the feed cannot be used.
func (c *NewsClient) Latest(ctx context.Context) []NewsItem {
	if c.url == "" {
		return FallbackNews
	}
	items, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("News feed unavailable, serving fallback", zap.String("url", c.url), zap.Error(err))
		return FallbackNews
	}
	return items
}

func (c *NewsClient) fetch(ctx context.Context) ([]NewsItem, error) {
	var items []NewsItem
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&items).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to call news feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("news feed returned status %d", resp.StatusCode())
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("news feed returned no items")
	}
	return items, nil
}
