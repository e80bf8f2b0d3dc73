package proto

// Protocol revision accepted on both sides of the proxy.
const (
	ProtocolVersion = 340
	VersionName     = "1.12.2"
)

// CompressionThreshold is the zlib threshold negotiated with downstream
// clients and honoured on outbound frames.
const CompressionThreshold = 256

// Handshake next-state values.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

// Status packets (both directions share the numbering).
const (
	StatusRequest  = 0x00
	StatusResponse = 0x00
	StatusPing     = 0x01
	StatusPong     = 0x01
)

// Login phase, clientbound.
const (
	LoginDisconnect        = 0x00
	LoginEncryptionRequest = 0x01
	LoginSuccess           = 0x02
	LoginSetCompression    = 0x03
)

// Login phase, serverbound.
const (
	LoginStart              = 0x00
	LoginEncryptionResponse = 0x01
)

// Play phase, clientbound.
const (
	ClientboundSpawnObject             = 0x00
	ClientboundSpawnExperienceOrb      = 0x01
	ClientboundSpawnGlobalEntity       = 0x02
	ClientboundSpawnMob                = 0x03
	ClientboundSpawnPainting           = 0x04
	ClientboundSpawnPlayer             = 0x05
	ClientboundAnimation               = 0x06
	ClientboundStatistics              = 0x07
	ClientboundBlockBreakAnimation     = 0x08
	ClientboundUpdateBlockEntity       = 0x09
	ClientboundBlockAction             = 0x0A
	ClientboundBlockChange             = 0x0B
	ClientboundBossBar                 = 0x0C
	ClientboundServerDifficulty        = 0x0D
	ClientboundTabComplete             = 0x0E
	ClientboundChatMessage             = 0x0F
	ClientboundMultiBlockChange        = 0x10
	ClientboundConfirmTransaction      = 0x11
	ClientboundCloseWindow             = 0x12
	ClientboundOpenWindow              = 0x13
	ClientboundWindowItems             = 0x14
	ClientboundWindowProperty          = 0x15
	ClientboundSetSlot                 = 0x16
	ClientboundSetCooldown             = 0x17
	ClientboundPluginMessage           = 0x18
	ClientboundNamedSoundEffect        = 0x19
	ClientboundDisconnect              = 0x1A
	ClientboundEntityStatus            = 0x1B
	ClientboundExplosion               = 0x1C
	ClientboundUnloadChunk             = 0x1D
	ClientboundChangeGameState         = 0x1E
	ClientboundKeepAlive               = 0x1F
	ClientboundChunkData               = 0x20
	ClientboundEffect                  = 0x21
	ClientboundParticle                = 0x22
	ClientboundJoinGame                = 0x23
	ClientboundMap                     = 0x24
	ClientboundEntity                  = 0x25
	ClientboundEntityRelativeMove      = 0x26
	ClientboundEntityLookRelativeMove  = 0x27
	ClientboundEntityLook              = 0x28
	ClientboundVehicleMove             = 0x29
	ClientboundOpenSignEditor          = 0x2A
	ClientboundCraftRecipeResponse     = 0x2B
	ClientboundPlayerAbilities         = 0x2C
	ClientboundCombatEvent             = 0x2D
	ClientboundPlayerListItem          = 0x2E
	ClientboundPlayerPositionAndLook   = 0x2F
	ClientboundUseBed                  = 0x30
	ClientboundUnlockRecipes           = 0x31
	ClientboundDestroyEntities         = 0x32
	ClientboundRemoveEntityEffect      = 0x33
	ClientboundResourcePackSend        = 0x34
	ClientboundRespawn                 = 0x35
	ClientboundEntityHeadLook          = 0x36
	ClientboundSelectAdvancementTab    = 0x37
	ClientboundWorldBorder             = 0x38
	ClientboundCamera                  = 0x39
	ClientboundHeldItemChange          = 0x3A
	ClientboundDisplayScoreboard       = 0x3B
	ClientboundEntityMetadata          = 0x3C
	ClientboundAttachEntity            = 0x3D
	ClientboundEntityVelocity          = 0x3E
	ClientboundEntityEquipment         = 0x3F
	ClientboundSetExperience           = 0x40
	ClientboundUpdateHealth            = 0x41
	ClientboundScoreboardObjective     = 0x42
	ClientboundSetPassengers           = 0x43
	ClientboundTeams                   = 0x44
	ClientboundUpdateScore             = 0x45
	ClientboundSpawnPosition           = 0x46
	ClientboundTimeUpdate              = 0x47
	ClientboundTitle                   = 0x48
	ClientboundSoundEffect             = 0x49
	ClientboundPlayerListHeaderFooter  = 0x4A
	ClientboundCollectItem             = 0x4B
	ClientboundEntityTeleport          = 0x4C
	ClientboundAdvancements            = 0x4D
	ClientboundEntityProperties        = 0x4E
	ClientboundEntityEffect            = 0x4F
)

// Play phase, serverbound.
const (
	ServerboundTeleportConfirm         = 0x00
	ServerboundTabComplete             = 0x01
	ServerboundChatMessage             = 0x02
	ServerboundClientStatus            = 0x03
	ServerboundClientSettings          = 0x04
	ServerboundConfirmTransaction      = 0x05
	ServerboundEnchantItem             = 0x06
	ServerboundClickWindow             = 0x07
	ServerboundCloseWindow             = 0x08
	ServerboundPluginMessage           = 0x09
	ServerboundUseEntity               = 0x0A
	ServerboundKeepAlive               = 0x0B
	ServerboundPlayer                  = 0x0C
	ServerboundPlayerPosition          = 0x0D
	ServerboundPlayerPositionAndLook   = 0x0E
	ServerboundPlayerLook              = 0x0F
	ServerboundVehicleMove             = 0x10
	ServerboundSteerBoat               = 0x11
	ServerboundCraftRecipeRequest      = 0x12
	ServerboundPlayerAbilities         = 0x13
	ServerboundPlayerDigging           = 0x14
	ServerboundEntityAction            = 0x15
	ServerboundSteerVehicle            = 0x16
	ServerboundCraftingBookData        = 0x17
	ServerboundResourcePackStatus      = 0x18
	ServerboundAdvancementTab          = 0x19
	ServerboundHeldItemChange          = 0x1A
	ServerboundCreativeInventoryAction = 0x1B
	ServerboundUpdateSign              = 0x1C
	ServerboundAnimation               = 0x1D
	ServerboundSpectate                = 0x1E
	ServerboundPlayerBlockPlacement    = 0x1F
	ServerboundUseItem                 = 0x20
)
