package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"captcha-solver/api/internal/ocr"
)

const maxImageBytes = 5 << 20

// Page fetches the login page over HTTP and downloads the CAPTCHA <img> it references.
// The cookie jar keeps the session so the image matches the page that issued it.
type Page struct {
	URL      string
	Selector string
	hc       *http.Client
}

func NewPage(pageURL, selector string, timeout time.Duration) (*Page, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return nil, fmt.Errorf("capture: bad page url: %w", err)
	}
	if selector == "" {
		selector = "img[src*='captcha']"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:      pageURL,
		Selector: selector,
		hc:       &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

func (p *Page) Capture(ctx context.Context) (ocr.CaptchaImage, error) {
	src, err := p.imageURL(ctx)
	if err != nil {
		return ocr.CaptchaImage{}, err
	}
	data, err := p.get(ctx, src)
	if err != nil {
		return ocr.CaptchaImage{}, fmt.Errorf("capture: image: %w", err)
	}
	if len(data) == 0 {
		return ocr.CaptchaImage{}, fmt.Errorf("capture: empty image at %s", src)
	}
	return ocr.NewCaptchaImage(data, src), nil
}

func (p *Page) imageURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("capture: page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("capture: page status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("capture: parse page: %w", err)
	}
	src, ok := doc.Find(p.Selector).First().Attr("src")
	if !ok || src == "" {
		return "", fmt.Errorf("capture: no element matches %q", p.Selector)
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("capture: bad img src %q: %w", src, err)
	}
	return resp.Request.URL.ResolveReference(ref).String(), nil
}

func (p *Page) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", p.URL)
	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}
