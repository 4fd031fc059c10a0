// Package biz 提供聊天机器人的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - Registry: 文档域注册表（查询 / 更新 / 自动创建）
//   - Classifier: 问题分类（寒暄 vs 技术问题）
//   - CannedMatcher: 固定答案匹配，不调用模型
//   - Retriever: 向量检索与来源提取
//   - AnswerCache: 生成答案的 Redis 缓存
//   - Generator: 组合以上组件的核心决策管线
//   - Ingestor: 文档分块与入库
package biz
