package server

import (
	"encoding/json"
	"net/http"

	"github.com/invopop/jsonschema"
)

// AdminHandler 管理与监控接口
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/admin/schema", HandleTuningSchema)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleAdminConfig 读取与更新速度/氮气参数（热更新，下一条报文起生效）
// GET  /admin/config  返回当前参数
// POST /admin/config  以 JSON 载荷更新部分字段，未给出的字段保持不变
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.game.Tuning())
	case http.MethodPost:
		next := s.game.Tuning()
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.game.SetTuning(next); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		s.log.Infow("tuning updated", "tuning", next)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tuning": next})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTuningSchema 输出参数的 JSON Schema，便于外部工具校验 POST 载荷
func HandleTuningSchema(w http.ResponseWriter, r *http.Request) {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(new(Tuning))
	schema.Title = "Light cycle tuning"
	schema.Description = "Speed and nitro parameters accepted by POST /admin/config"
	writeJSON(w, http.StatusOK, schema)
}

// HandleMetrics 输出运行指标
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":   s.game.Phase().String(),
		"players": s.game.PlayerCount(),
		"target":  s.cfg.Players,
		"metrics": s.game.Metrics().Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
