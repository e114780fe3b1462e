package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"captcha-solver/api/internal/ocr"
)

// Browser screenshots the CAPTCHA element in a headless Chromium. The first capture
// opens the page, every next one reloads it so the portal issues a new image.
type Browser struct {
	URL      string
	Selector string

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	opened  bool
}

func NewBrowser(pageURL, selector string) (*Browser, error) {
	if selector == "" {
		selector = "img[src*='captcha']"
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("capture: start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("capture: launch browser: %w", err)
	}
	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("capture: browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("capture: new page: %w", err)
	}
	return &Browser{URL: pageURL, Selector: selector, pw: pw, browser: browser, page: page}, nil
}

func (b *Browser) Capture(ctx context.Context) (ocr.CaptchaImage, error) {
	if err := ctx.Err(); err != nil {
		return ocr.CaptchaImage{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if !b.opened {
		_, err = b.page.Goto(b.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
		})
		b.opened = err == nil
	} else {
		_, err = b.page.Reload(playwright.PageReloadOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
		})
	}
	if err != nil {
		return ocr.CaptchaImage{}, fmt.Errorf("capture: load page: %w", err)
	}

	el, err := b.page.QuerySelector(b.Selector)
	if err != nil || el == nil {
		return ocr.CaptchaImage{}, fmt.Errorf("capture: no element matches %q: %v", b.Selector, err)
	}
	png, err := el.Screenshot(playwright.ElementHandleScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return ocr.CaptchaImage{}, fmt.Errorf("capture: screenshot: %w", err)
	}
	return ocr.NewCaptchaImage(png, b.URL), nil
}

// Submitter fills the answer into inputSel, clicks submitSel and treats the page as
// accepted when errorSel is not present after navigation.
func (b *Browser) Submitter(inputSel, submitSel, errorSel string) func(context.Context, string) (bool, error) {
	return func(ctx context.Context, answer string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.page.Locator(inputSel).Fill(answer); err != nil {
			return false, fmt.Errorf("fill %q: %w", inputSel, err)
		}
		if err := b.page.Locator(submitSel).Click(); err != nil {
			return false, fmt.Errorf("click %q: %w", submitSel, err)
		}
		if err := b.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateNetworkidle,
		}); err != nil {
			return false, fmt.Errorf("wait after submit: %w", err)
		}
		n, err := b.page.Locator(errorSel).Count()
		if err != nil {
			return false, fmt.Errorf("check %q: %w", errorSel, err)
		}
		return n == 0, nil
	}
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.pw != nil {
		if e := b.pw.Stop(); err == nil {
			err = e
		}
	}
	return err
}
