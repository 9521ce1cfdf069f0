package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"pairlab/internal/logger"
)

var log = logger.Component("export")

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测一次本机 Chrome/Chromium，结果缓存到进程结束。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		parent, cancel := chromedp.NewContext(ctx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
		if headlessErr != nil {
			log.Warnf("headless 浏览器不可用，PNG 导出关闭: %v", headlessErr)
		}
	})
	return headlessErr
}

// RenderPNG 在 headless 浏览器里打开 HTML 并截全屏。
func RenderPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}

// Dir 把导出文件落到 storage.export_dir；回测结果不可变，按 run id 缓存 PNG。
type Dir struct {
	Path   string
	render func(ctx context.Context, html []byte, width, height int) ([]byte, error)
}

func NewDir(path string) *Dir {
	return &Dir{Path: path, render: RenderPNG}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CachedPNG 先查磁盘缓存，未命中时渲染 build() 生成的 HTML 并写回。
func (d *Dir) CachedPNG(ctx context.Context, name string, build func() ([]byte, error)) ([]byte, error) {
	name = unsafeName.ReplaceAllString(name, "_")
	if name == "" {
		return nil, fmt.Errorf("export: empty file name")
	}
	path := filepath.Join(d.Path, name+".png")
	if d.Path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("读取缓存 %s 失败: %v", path, err)
		}
	}
	html, err := build()
	if err != nil {
		return nil, err
	}
	png, err := d.render(ctx, html, ChartWidthPx+40, 2*ChartHeightPx+80)
	if err != nil {
		return nil, err
	}
	if d.Path == "" {
		return png, nil
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		log.Warnf("创建导出目录失败: %v", err)
		return png, nil
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warnf("写入 %s 失败: %v", path, err)
	}
	return png, nil
}
