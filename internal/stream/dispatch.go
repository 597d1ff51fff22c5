package stream

import (
	"encoding/json"
	"time"
)

// Send forwards a command to the addressed stream and returns a
// structured envelope. Errors never propagate as panics or Go errors
// across this boundary; every outcome is a CmdResponse.
//
// Two special paths:
//   - "all"/"update_snapshot" triggers a forced snapshot round over the
//     active streams without touching any single one.
//   - "update_snapshot" on a single stream synchronously obtains a
//     fresh snapshot, stopping the stream afterward when the command
//     itself opened the connection on demand.
//
// A downstream response without a status field is treated as malformed:
// the generic error envelope is returned with the raw response attached
// rather than passing the response through unchanged.
func (m *Manager) Send(uri, cmd string, payload any) CmdResponse {
	resp := CmdResponse{Status: "error", Command: cmd, Payload: payload}

	if uri == "all" && cmd == CmdUpdateSnapshot {
		m.TakeSnapshots(nil, true)
		resp.Status = "success"
		return resp
	}

	s := m.registry.Get(uri)
	if s == nil {
		resp.Response = "Camera not found"
		return resp
	}

	camResp, ok := s.SendCmd(cmd, payload)
	if !ok {
		return resp
	}

	var status any = 0
	if camResp["status"] == "success" {
		status = camResp["value"]
	}
	if nested, isMap := status.(map[string]any); isMap {
		if b, err := json.Marshal(nested); err == nil {
			status = string(b)
		}
	}

	if cmd == CmdUpdateSnapshot {
		demandOpened := !s.Connected()
		snap := m.GetRTSPSnap(uri)
		if demandOpened {
			if err := s.Stop(); err != nil {
				m.logger.Warn("Failed to stop demand-opened stream", "uri", uri, "error", err)
			}
		}

		var ts int64
		if snap {
			ts = time.Now().Unix()
		}
		m.publish(uri+"/"+cmd, ts)

		resp.Status = "success"
		resp.Value = snap
		resp.Response = snap
		return resp
	}

	m.publish(uri+"/"+cmd, status)

	if st, hasStatus := camResp["status"].(string); hasStatus {
		return CmdResponse{
			Status:   st,
			Command:  cmd,
			Payload:  payload,
			Value:    camResp["value"],
			Response: camResp["response"],
		}
	}

	resp.Response = camResp
	return resp
}

func (m *Manager) publish(topic string, value any) {
	if m.notifier != nil {
		m.notifier.Publish(topic, value)
	}
}
