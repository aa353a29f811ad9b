package chats

import "github.com/eternisai/agent-stream/internal/storage"

const maxTitleLength = 200

type CreateChatRequest struct {
	Title string `json:"title"`
}

type ListChatsResponse struct {
	Chats []storage.Chat `json:"chats"`
}

type ListMessagesResponse struct {
	ChatID   string            `json:"chatId"`
	Messages []storage.Message `json:"messages"`
}
