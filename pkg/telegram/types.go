package telegram

// Update 是 Bot API 推送的一次更新。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message 是一条入站消息。只映射本服务需要的字段。
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *Document   `json:"document,omitempty"`
}

// User 是消息的发送者。
type User struct {
	ID int64 `json:"id"`
}

// Chat 是消息所属的会话。
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize 是照片的单个尺寸变体，Photo 数组按分辨率升序排列。
type PhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Document 是一个通用文件附件。
type Document struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// File 是 getFile 返回的可下载文件描述。
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}
