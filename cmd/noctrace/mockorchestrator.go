package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pkt.systems/noctrace/httpapi"
	"pkt.systems/noctrace/internal/appconfig"
	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

type mockConfig struct {
	scenario string
	delay    time.Duration
}

// mockFrame is one event written to the investigate stream. raw is written
// verbatim instead of data when set.
type mockFrame struct {
	event string
	data  any
	raw   string
	pause time.Duration
}

type mockScenario struct {
	name   string
	frames func(alert string, sessionID schema.SessionID) []mockFrame
}

func newMockOrchestratorCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var scenario string
	var delayMS int
	cmd := &cobra.Command{
		Use:   "mock-orchestrator",
		Short: "Serve scripted investigation streams for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Mock.Addr
			}
			if scenario == "" {
				scenario = cfg.Mock.Scenario
			}
			if delayMS < 0 {
				delayMS = cfg.Mock.StepDelayMS
			}
			mock, err := newMockOrchestrator(mockConfig{scenario: scenario, delay: time.Duration(delayMS) * time.Millisecond})
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("mock orchestrator start", "addr", addr, "scenario", scenario, "delay_ms", delayMS)
			return httpapi.ListenAndServe(cmd.Context(), addr, mock.Handler())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path (default ~/.noctrace/config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides mock.addr)")
	cmd.Flags().StringVar(&scenario, "scenario", "", "default scenario: "+strings.Join(mockScenarioNames(), ", "))
	cmd.Flags().IntVar(&delayMS, "delay-ms", -1, "delay between frames in milliseconds (overrides mock.step_delay_ms)")
	return cmd
}

type mockOrchestrator struct {
	cfg       mockConfig
	scenarios map[string]mockScenario

	mu      sync.Mutex
	history map[schema.HistoryID]schema.HistoryRecord
}

func newMockOrchestrator(cfg mockConfig) (*mockOrchestrator, error) {
	scenarios := make(map[string]mockScenario)
	for _, s := range buildMockScenarios() {
		scenarios[s.name] = s
	}
	if cfg.scenario == "" {
		cfg.scenario = "normal"
	}
	if _, ok := scenarios[cfg.scenario]; !ok {
		return nil, fmt.Errorf("unknown scenario: %s", cfg.scenario)
	}
	return &mockOrchestrator{
		cfg:       cfg,
		scenarios: scenarios,
		history:   make(map[schema.HistoryID]schema.HistoryRecord),
	}, nil
}

func (m *mockOrchestrator) Handler() http.Handler {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(orchestrator.DefaultInvestigatePath, m.handleInvestigate)
	router.POST(orchestrator.DefaultVisualizationPath, m.handleVisualization)
	router.POST(orchestrator.DefaultHistoryPath, m.handleSaveHistory)
	router.DELETE(orchestrator.DefaultHistoryPath+"/:id", m.handleDeleteHistory)
	return router
}

func (m *mockOrchestrator) pick(requested schema.ScenarioID) mockScenario {
	if s, ok := m.scenarios[string(requested)]; ok {
		return s
	}
	return m.scenarios[m.cfg.scenario]
}

func (m *mockOrchestrator) handleInvestigate(c *gin.Context) {
	var req schema.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.AlertText) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert is required"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = schema.SessionID(uuid.NewString())
	}
	scenario := m.pick(req.Scenario)
	log := pslog.Ctx(c.Request.Context()).With("session", sessionID, "scenario", scenario.name)
	log.Info("mock investigation start")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	ctx := c.Request.Context()
	for _, frame := range scenario.frames(req.AlertText, sessionID) {
		pause := m.cfg.delay
		if frame.pause > 0 {
			pause = frame.pause
		}
		if err := sleepCtx(ctx, pause); err != nil {
			log.Info("mock investigation aborted", "err", err)
			return
		}
		if frame.raw != "" {
			_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", frame.event, frame.raw)
		} else {
			c.SSEvent(frame.event, frame.data)
		}
		c.Writer.Flush()
	}
	log.Info("mock investigation done")
}

func (m *mockOrchestrator) handleVisualization(c *gin.Context) {
	var req schema.VisualizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Step <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "step not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": req.SessionID,
		"step":       req.Step,
		"agent":      req.Agent,
		"kind":       "topology",
		"nodes": []gin.H{
			{"id": "core-sw-01", "role": "core"},
			{"id": "dist-sw-04", "role": "distribution"},
			{"id": "edge-rtr-02", "role": "edge"},
		},
		"edges": []gin.H{
			{"from": "core-sw-01", "to": "dist-sw-04", "status": "down"},
			{"from": "core-sw-01", "to": "edge-rtr-02", "status": "up"},
		},
	})
}

func (m *mockOrchestrator) handleSaveHistory(c *gin.Context) {
	var record struct {
		SessionID schema.SessionID `json:"session_id"`
		Title     string           `json:"title"`
		AlertText string           `json:"alert_text"`
		SavedAt   time.Time        `json:"saved_at"`
	}
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := schema.HistoryID(uuid.NewString())
	m.mu.Lock()
	m.history[id] = schema.HistoryRecord{SessionID: record.SessionID, Title: record.Title, AlertText: record.AlertText, SavedAt: record.SavedAt}
	m.mu.Unlock()
	c.JSON(http.StatusOK, schema.SaveHistoryResponse{ID: id})
}

func (m *mockOrchestrator) handleDeleteHistory(c *gin.Context) {
	id := schema.HistoryID(c.Param("id"))
	m.mu.Lock()
	_, ok := m.history[id]
	delete(m.history, id)
	m.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "history not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *mockOrchestrator) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func mockScenarioNames() []string {
	scenarios := buildMockScenarios()
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.name)
	}
	return names
}

func buildMockScenarios() []mockScenario {
	return []mockScenario{
		{name: "normal", frames: scenarioNormal},
		{name: "action", frames: scenarioAction},
		{name: "error", frames: scenarioError},
		{name: "malformed", frames: scenarioMalformed},
		{name: "slow", frames: scenarioSlow},
	}
}

func mockDevice(alert string) string {
	for _, field := range strings.Fields(alert) {
		if strings.Contains(field, "-") {
			return strings.Trim(field, ".,;:")
		}
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(alert))
	return fmt.Sprintf("sw-%02d", hasher.Sum32()%50)
}

func investigationSteps(device string) []mockFrame {
	return []mockFrame{
		{event: "step_thinking", data: gin.H{"agent": "netbox", "status": "Looking up " + device}},
		{event: "step_start", data: gin.H{"agent": "netbox", "step": 1, "query": "device " + device}},
		{event: "step_complete", data: gin.H{
			"step":      1,
			"agent":     "netbox",
			"duration":  1.2,
			"query":     "device " + device,
			"response":  device + " is a core switch in rack A3, site AMS1.",
			"reasoning": "Need the device role and location before reading logs.",
		}},
		{event: "step_thinking", data: gin.H{"agent": "splunk", "status": "Searching syslog"}},
		{event: "step_start", data: gin.H{"agent": "splunk", "step": 2, "query": "host=" + device + " earliest=-1h"}},
		{event: "step_substep", data: gin.H{"step": 2, "agent": "splunk", "query": "index=network host=" + device, "result_summary": "412 events"}},
		{event: "step_substep", data: gin.H{"step": 2, "agent": "splunk", "query": "index=network LINEPROTO-5-UPDOWN", "result_summary": "38 flaps on Te1/0/4"}},
		{event: "step_complete", data: gin.H{
			"step":     2,
			"agent":    "splunk",
			"duration": "3.4s",
			"query":    "host=" + device + " earliest=-1h",
			"response": "Te1/0/4 flapped 38 times; last transceiver alarm at 02:14Z.",
		}},
	}
}

func diagnosisFrames(device string) []mockFrame {
	text := "**Root cause:** the optic on " + device + " `Te1/0/4` is failing.\n\n- Replace the SFP\n- Monitor the port for flaps"
	half := len(text) / 2
	return []mockFrame{
		{event: "message_delta", data: gin.H{"text": text[:half]}},
		{event: "message_delta", data: gin.H{"text": text[half:]}},
		{event: "message", data: gin.H{"text": text}},
		{event: "run_complete", data: gin.H{}},
	}
}

func scenarioNormal(alert string, sessionID schema.SessionID) []mockFrame {
	device := mockDevice(alert)
	frames := []mockFrame{{event: "run_start", data: gin.H{"session_id": sessionID}}}
	frames = append(frames, investigationSteps(device)...)
	return append(frames, diagnosisFrames(device)...)
}

func scenarioAction(alert string, sessionID schema.SessionID) []mockFrame {
	device := mockDevice(alert)
	frames := []mockFrame{{event: "run_start", data: gin.H{"session_id": sessionID}}}
	frames = append(frames, investigationSteps(device)...)
	frames = append(frames,
		mockFrame{event: "step_start", data: gin.H{"agent": "dispatch", "step": 3}},
		mockFrame{event: "step_complete", data: gin.H{
			"step":      3,
			"agent":     "dispatch",
			"duration":  "0.8s",
			"response":  "Field engineer dispatched.",
			"is_action": true,
			"action": gin.H{
				"engineer":       "Sam Lee",
				"engineer_email": "sam.lee@example.net",
				"destination":    "AMS1 rack A3",
				"dispatch_id":    "D-" + strings.ToUpper(string(sessionID)[:min(6, len(sessionID))]),
				"dispatch_time":  "2026-10-14T03:00:00Z",
				"urgency":        "high",
				"email_subject":  "Replace optic on " + device,
				"email_body":     "Please replace the SFP in Te1/0/4 on " + device + ".",
			},
		}},
	)
	return append(frames, diagnosisFrames(device)...)
}

func scenarioError(alert string, sessionID schema.SessionID) []mockFrame {
	device := mockDevice(alert)
	return []mockFrame{
		{event: "run_start", data: gin.H{"session_id": sessionID}},
		{event: "step_start", data: gin.H{"agent": "netbox", "step": 1, "query": "device " + device}},
		{event: "step_complete", data: gin.H{"step": 1, "agent": "netbox", "error": true, "response": "netbox API returned 502"}},
		{event: "error", data: gin.H{"message": "[504] Gateway Timeout: splunk agent did not answer"}},
	}
}

func scenarioMalformed(alert string, sessionID schema.SessionID) []mockFrame {
	device := mockDevice(alert)
	frames := []mockFrame{
		{event: "run_start", data: gin.H{"session_id": sessionID}},
		{event: "step_complete", raw: `{"step": 1, "agent": "netbox"`},
		{event: "step_teleport", data: gin.H{"step": 9}},
	}
	frames = append(frames, investigationSteps(device)...)
	return append(frames, diagnosisFrames(device)...)
}

func scenarioSlow(alert string, sessionID schema.SessionID) []mockFrame {
	frames := scenarioNormal(alert, sessionID)
	for i := range frames {
		frames[i].pause = 2 * time.Second
	}
	return frames
}
