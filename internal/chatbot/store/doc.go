// Package store 提供聊天机器人的向量存储层。
//
// 该包定义了向量存储的接口抽象和基于 Milvus 的实现，
// 支持文档块的分批入库、按域检索和统计功能。
package store
