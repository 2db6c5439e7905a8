package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "cvscore"

	// JDModulePrefix JD要求模块
	JDModulePrefix = "jd"
	// ExtractModulePrefix 实体抽取模块
	ExtractModulePrefix = "extract"
	// BatchModulePrefix 批量打分模块
	BatchModulePrefix = "batch"

	// KeyRequirementProfile JD要求画像缓存 (STRING, JSON)
	// 格式: cvscore:jd:profile:{jdHash}
	KeyRequirementProfile = AppPrefix + ":" + JDModulePrefix + ":profile:%s"

	// KeyExtractionResult 实体抽取结果缓存 (STRING, JSON)
	// 格式: cvscore:extract:spans:{contentHash}
	KeyExtractionResult = AppPrefix + ":" + ExtractModulePrefix + ":spans:%s"

	// KeyBatchLock 批量打分分布式锁 (STRING)
	// 格式: cvscore:batch:lock:{batchID}
	KeyBatchLock = AppPrefix + ":" + BatchModulePrefix + ":lock:%s"

	// KeyBatchStatus 异步批次状态 (STRING)
	// 格式: cvscore:batch:status:{batchID}
	KeyBatchStatus = AppPrefix + ":" + BatchModulePrefix + ":status:%s"
)
