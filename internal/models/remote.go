package models

import "encoding/json"

// RMM API 返回的原始结构。除 id 外所有字段都视为可选/不可信，
// 缺失字段的默认规则集中在 normalizer 包

// RemoteDevice 远程设备清单条目（GET /devices）
type RemoteDevice struct {
	ID          string `json:"id"`
	SystemName  string `json:"systemName"`
	Hostname    string `json:"hostname"`
	Status      string `json:"status"`
	Online      bool   `json:"online"`
	LastContact string `json:"lastContact"`
	IssuesCount int    `json:"issuesCount"`
}

// RemoteAlert 远程报警条目（GET /devices/{id}/alerts）
// 部分厂商用 subject/message/priority 代替 title/description/severity，
// 两套字段都接收，Title()/Message()/RawSeverity() 统一取值
type RemoteAlert struct {
	ID             string `json:"id"`
	TitleField     string `json:"title"`
	Subject        string `json:"subject"`
	Description    string `json:"description"`
	MessageField   string `json:"message"`
	SeverityField  string `json:"severity"`
	Priority       string `json:"priority"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	CreatedAt      string `json:"createdAt"`
	AcknowledgedAt string `json:"acknowledgedAt"`
	ResolvedAt     string `json:"resolvedAt"`

	// 远程返回的原始字节，解码时保留。
	// 厂商私有字段不在上面的已知字段集里，存档必须用原始字节
	raw json.RawMessage
}

// UnmarshalJSON 解码已知字段的同时保留原始字节
func (a *RemoteAlert) UnmarshalJSON(data []byte) error {
	type remoteAlert RemoteAlert
	var decoded remoteAlert
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = RemoteAlert(decoded)
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Raw 返回远程返回的原始字节（未经解码的构造实例返回 nil）
func (a *RemoteAlert) Raw() json.RawMessage {
	return a.raw
}

// Title 标题取值：title 优先，其次 subject
func (a *RemoteAlert) Title() string {
	if a.TitleField != "" {
		return a.TitleField
	}
	return a.Subject
}

// Message 描述取值：description 优先，其次 message
func (a *RemoteAlert) Message() string {
	if a.Description != "" {
		return a.Description
	}
	return a.MessageField
}

// RawSeverity 级别取值：severity 优先，其次 priority
func (a *RemoteAlert) RawSeverity() string {
	if a.SeverityField != "" {
		return a.SeverityField
	}
	return a.Priority
}

// RemoteHealth 远程健康快照（GET /devices/{id}/health）
type RemoteHealth struct {
	Status      string `json:"status"`
	IssuesCount int    `json:"issuesCount"`
	Online      bool   `json:"online"`
	LastContact string `json:"lastContact"`
}
