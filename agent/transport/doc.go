// Copyright (c) AgentLens Authors.
// Licensed under the MIT License.

/*
Package transport 提供委派请求的投递通道（Pool Transport）。

# 概述

Transport 负责把 DelegationRequest 投递到目标 Agent 的收件箱，并在请求
到达终态时通知等待中的调用方。收件箱采用拉取模型，目标 Agent 需要主动
轮询；请求从 request 到 accepted 的状态迁移是原子的比较并交换，保证同一
requestId 只有一个接受者。

# 实现

  - LocalTransport — 进程内实现，按 Agent 维护有序队列，投递同步可靠
  - RedisTransport — 基于 Redis 的远程实现：Hash 保存请求、ZSET 作为
    持久收件箱、Lua 脚本完成状态 CAS、Pub/Sub 推送终态通知，
    投递为尽力而为
*/
package transport
