package hasznaltalma

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"iphone-scraper/config"
	"iphone-scraper/models"
	"iphone-scraper/utils"
)

const (
	rowSelector        = ".desktop_row_view.product-item"
	titleSelector      = ".title a"
	priceSelector      = ".price strong"
	conditionSelector  = `.text-centera span[style*="color: orange"]`
	paginationSelector = ".pagination li"
)

// FetchFunc returns the rendered HTML of a page.
type FetchFunc func(ctx context.Context, pageURL string) (string, error)

// Scraper walks the hasznaltalma.hu iPhone listing pages.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	visitedURL *utils.Set[string]
	throttle   *utils.Throttle
	retry      *utils.RetryConfig
	fetch      FetchFunc
	now        func() time.Time
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the headless browser with the given fetch function.
func WithFetcher(fetch FetchFunc) Option {
	return func(s *Scraper) { s.fetch = fetch }
}

// WithRetryDelay sets the base back-off delay between page attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scraper) { s.retry.BaseDelay = d }
}

// New creates a ready-to-use Scraper.
func New(cfg *config.Config, logger *utils.Logger, opts ...Option) *Scraper {
	logger = logger.Component("hasznaltalma")
	s := &Scraper{
		cfg:        cfg,
		logger:     logger,
		visitedURL: utils.NewSet[string](),
		throttle:   utils.NewThrottle(time.Duration(cfg.RateLimitMs) * time.Millisecond),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape loads the first listing page, reads the page count from its
// pagination and then visits the remaining pages in order.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, error) {
	fetch := s.fetch
	if fetch == nil {
		browserCtx, cancel := s.newBrowser(ctx)
		defer cancel()
		fetch = browserFetch(browserCtx)
	}

	firstURL := s.cfg.PageURL(1)
	s.logger.Info("Scraping page 1: %s", firstURL)

	if err := s.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	html, err := s.fetchPage(ctx, fetch, firstURL, 1)
	if err != nil {
		return nil, fmt.Errorf("first page: %w", err)
	}

	totalPages := ParseTotalPages(html)
	if s.cfg.MaxPages > 0 && totalPages > s.cfg.MaxPages {
		totalPages = s.cfg.MaxPages
	}
	s.logger.Info("Total pages to scrape: %d", totalPages)

	listings := s.collect(nil, html, firstURL)

	for page := 2; page <= totalPages; page++ {
		if err := s.throttle.Wait(ctx); err != nil {
			return listings, err
		}

		pageURL := s.cfg.PageURL(page)
		s.logger.Info("Scraping page %d: %s", page, pageURL)

		html, err := s.fetchPage(ctx, fetch, pageURL, page)
		if err != nil {
			if ctx.Err() != nil {
				return listings, ctx.Err()
			}
			s.logger.Error("Page %d failed: %v", page, err)
			continue
		}
		listings = s.collect(listings, html, pageURL)
	}

	s.logger.Info("Scrape complete: %d raw listings", len(listings))
	return listings, nil
}

func (s *Scraper) fetchPage(ctx context.Context, fetch FetchFunc, pageURL string, page int) (string, error) {
	var html string
	err := s.retry.Do(ctx, fmt.Sprintf("scrape-page-%d", page), func(ctx context.Context) error {
		var err error
		html, err = fetch(ctx, pageURL)
		return err
	})
	return html, err
}

func (s *Scraper) collect(listings []*models.RawListing, html, pageURL string) []*models.RawListing {
	rows, dropped, err := ParseListings(html, pageURL)
	if err != nil {
		s.logger.Error("Failed to parse %s: %v", pageURL, err)
		return listings
	}
	if dropped > 0 {
		s.logger.Warn("%d rows without title or link skipped on %s", dropped, pageURL)
	}

	scrapedAt := s.now().UTC()
	added := 0
	for _, row := range rows {
		if !s.visitedURL.Add(row.URL) {
			s.logger.Debug("Duplicate listing %s skipped", row.URL)
			continue
		}
		row.ScrapedAt = scrapedAt
		listings = append(listings, row)
		added++
	}
	s.logger.Info("%d listings found on %s", added, pageURL)
	return listings
}

func (s *Scraper) newBrowser(ctx context.Context) (context.Context, context.CancelFunc) {
	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

func browserFetch(browserCtx context.Context) FetchFunc {
	return func(ctx context.Context, pageURL string) (string, error) {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 60*time.Second)
		defer cancelTimeout()

		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		var html string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", pageURL, err)
		}
		return html, nil
	}
}

// ParseListings extracts the listing rows of one page. Relative links are
// resolved against pageURL. Rows without a title or a usable link are left
// out and counted in dropped.
func ParseListings(html, pageURL string) (listings []*models.RawListing, dropped int, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse page url: %w", err)
	}

	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		link := row.Find(titleSelector).First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || title == "" {
			dropped++
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			dropped++
			return
		}

		listing := &models.RawListing{
			Title:     title,
			PriceText: strings.TrimSpace(row.Find(priceSelector).First().Text()),
			URL:       base.ResolveReference(ref).String(),
		}

		condition := row.Find(conditionSelector).First()
		if condition.Length() > 0 {
			listing.Condition = textPtr(condition)
			if battery := condition.Next(); battery.Is("span") {
				listing.Battery = textPtr(battery)
			}
		}

		listings = append(listings, listing)
	})

	return listings, dropped, nil
}

// ParseTotalPages reads the page count from the second-to-last pagination
// entry. It returns 1 when the pagination is missing or unreadable.
func ParseTotalPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	items := doc.Find(paginationSelector)
	if items.Length() < 2 {
		return 1
	}

	n, err := strconv.Atoi(strings.TrimSpace(items.Eq(items.Length() - 2).Text()))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func textPtr(sel *goquery.Selection) *string {
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return nil
	}
	return &text
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	for _, p := range []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
