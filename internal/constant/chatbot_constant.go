package constant

// User-visible texts. They are shown verbatim by the presentation layer.
const (
	ChatFallbackAnswer = "抱歉，我现在无法回答您的问题，请稍后再试。"
	ChatFailedNotice   = "对话失败，请重试"

	RecallNoKnowledgeBaseNotice = "请先创建知识库"
	RecallFailedNotice          = "召回测试失败，请重试"
	// RecallResultNoticeFormat takes the number of fragments
	RecallResultNoticeFormat = "检索到 %d 个相关文档片段"

	UploadFailedNotice    = "文件上传失败"
	UploadSucceededNotice = "文件上传成功"
	CreateFailedNotice    = "知识库创建失败"
	CreateSucceededNotice = "知识库创建成功"

	KnowledgeBaseDeletedNotice = "知识库已删除"
	MessagesClearedNotice      = "对话记录已清空"

	DefaultTopK = 3
)
