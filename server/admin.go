package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/skip2/go-qrcode"

	"robotarena/protocol"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 返回当前场景配置（只读，场景在启动后不可变）
// GET /admin/config
func (a *Arena) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.Sim.Config())
}

// HandleRelayStatus 中继状态：连接状态、连接 id、会话 id、编码
// GET /admin/relay
func (a *Arena) HandleRelayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.Relay.Status())
}

// HandleViewport 观察端报告窗口大小，只影响相机
// POST /admin/viewport {"width":800,"height":600}
func (a *Arena) HandleViewport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Width < 0 || body.Height < 0 {
		http.Error(w, "negative size", http.StatusBadRequest)
		return
	}
	a.Sim.Resize(body.Width, body.Height)
	Log.Debugw("viewport resized", "width", body.Width, "height", body.Height)
	writeJSON(w, a.Sim.Camera())
}

// HandleJournal 最近的事件记录
// GET /admin/journal?limit=50
func (a *Arena) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if a.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.Journal.Recent(limit)
	if err != nil {
		Log.Errorw("read journal", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

// HandleMetrics 输出运行指标
// GET /metrics
func (a *Arena) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	frames, framesDropped := a.Viewers.Stats()
	payload := map[string]any{
		"tick":    a.Sim.TickCount(),
		"relay":   a.Relay.State().String(),
		"viewers": a.Viewers.Count(),
		"frames": map[string]int64{
			"sent":    frames,
			"dropped": framesDropped,
		},
		"metrics": a.Metrics.Snapshot(a.Sim.InputsDropped()),
	}
	if a.Journal != nil {
		payload["journal"] = map[string]int64{"dropped": a.Journal.Dropped()}
	}
	writeJSON(w, payload)
}

// HandleSchema 命令参数的 JSON Schema
// GET /protocol/schema
func (a *Arena) HandleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.Schemas())
}

// controllerURL 由请求的 Host 推出遥控端应连接的地址
func controllerURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/controller"}
	if c := r.URL.Query().Get("codec"); c != "" {
		u.RawQuery = url.Values{"codec": {c}}.Encode()
	}
	return u.String()
}

// HandlePair 遥控端地址的二维码，手机扫码即可连接
// GET /pair.png?size=256
func (a *Arena) HandlePair(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 64 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(controllerURL(r), qrcode.Medium, size)
	if err != nil {
		Log.Errorw("encode pairing qr", "err", err)
		http.Error(w, "qr encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}
