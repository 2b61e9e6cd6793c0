// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// 对话角色。Gemini 协议只区分 user 与 model 两种。
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part 内容类型标签。
const (
	PartText = "text"
	PartBlob = "blob"
)

// Part 代表一条消息中的单个内容项：纯文本或二进制附件。
// 通过 Kind 字段显式区分，序列化/构造请求时可做穷举处理。
type Part struct {
	Kind     string
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart 构造一个文本内容项。
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// BlobPart 构造一个二进制附件内容项。
func BlobPart(mimeType string, data []byte) Part {
	return Part{Kind: PartBlob, MIMEType: mimeType, Data: data}
}

// partJSON 是 Part 的线上格式，与 Gemini REST API 的 parts 元素一致：
// 文本为 {"text": "..."}，附件为 {"inline_data": {"mime_type": "...", "data": "<base64>"}}。
type partJSON struct {
	Text       *string       `json:"text,omitempty"`
	InlineData *blobDataJSON `json:"inline_data,omitempty"`
}

type blobDataJSON struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// MarshalJSON 按 Kind 输出互斥的两种线上形态。
func (p Part) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PartText:
		t := p.Text
		return json.Marshal(partJSON{Text: &t})
	case PartBlob:
		return json.Marshal(partJSON{InlineData: &blobDataJSON{
			MIMEType: p.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(p.Data),
		}})
	default:
		return nil, fmt.Errorf("未知的内容项类型: %q", p.Kind)
	}
}

// UnmarshalJSON 还原 Part，保证 role、文本与附件字节的往返无损。
func (p *Part) UnmarshalJSON(b []byte) error {
	var raw partJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch {
	case raw.InlineData != nil:
		data, err := base64.StdEncoding.DecodeString(raw.InlineData.Data)
		if err != nil {
			return fmt.Errorf("解码附件数据失败: %w", err)
		}
		*p = BlobPart(raw.InlineData.MIMEType, data)
	case raw.Text != nil:
		*p = TextPart(*raw.Text)
	default:
		return fmt.Errorf("内容项缺少 text 或 inline_data 字段")
	}
	return nil
}

// Turn 代表一次对话交换单元：一条用户输入或一条模型输出。
// 不变量：Parts 非空；空的用户提交会被规范化为单个空文本项。
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// TextTurn 构造一个只含单条文本的 Turn。
func TextTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{TextPart(text)}}
}

// Normalize 保证 Parts 非空。
func (t *Turn) Normalize() {
	if len(t.Parts) == 0 {
		t.Parts = []Part{TextPart("")}
	}
}

// JoinedText 拼接 Turn 中所有文本内容项，忽略附件。
func (t Turn) JoinedText() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
