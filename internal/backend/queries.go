package backend

const messageFields = `
fragment MessageFields on chat_message {
  id
  chat_room_id
  sender_profile_id
  text
  created_at
  deleted
  is_system_message
  reply_to_message {
    id
    text
    sender_profile_id
    deleted
  }
}`

const roomFields = `
fragment RoomFields on chat_room {
  id
  chat_intro_id
  profile_to_chat_rooms {
    id
    profile_id
    chat_room_id
    latest_read_chat_message_id
    profile {
      id
      space_id
      headline
      profile_image {
        id
        url
      }
      user {
        id
        first_name
        last_name
        full_name
        type
      }
    }
  }
  latest_chat_message: chat_messages(order_by: {id: desc}, limit: 1) {
    ...MessageFields
  }
  first_chat_message: chat_messages(order_by: {id: asc}, limit: 1) {
    ...MessageFields
  }
}`

const getMessagesByChatRoom = `
query GetMessagesByChatRoom($chat_room_id: Int!, $id_cap: Int!, $limit: Int!) {
  chat_message(
    where: {chat_room_id: {_eq: $chat_room_id}, id: {_lte: $id_cap}}
    order_by: {created_at: desc}
    limit: $limit
  ) {
    ...MessageFields
  }
}` + messageFields

// The _or guard keeps the stored marker from moving backwards even when two
// clients of the same profile race.
const updateLatestReadMessage = `
mutation UpdateLatestReadMessage($profile_id: Int!, $chat_room_id: Int!, $message_id: Int!) {
  update_profile_to_chat_room(
    where: {
      profile_id: {_eq: $profile_id}
      chat_room_id: {_eq: $chat_room_id}
      _or: [
        {latest_read_chat_message_id: {_is_null: true}}
        {latest_read_chat_message_id: {_lt: $message_id}}
      ]
    }
    _set: {latest_read_chat_message_id: $message_id}
  ) {
    affected_rows
  }
}`

const sendMessage = `
mutation SendMessage($chat_room_id: Int!, $sender_profile_id: Int!, $text: String!) {
  insert_chat_message_one(object: {chat_room_id: $chat_room_id, sender_profile_id: $sender_profile_id, text: $text}) {
    ...MessageFields
  }
}` + messageFields

const streamMessages = `
subscription StreamMessages($chat_room_id: Int!, $since: timestamptz!) {
  chat_message_stream(
    batch_size: 50
    cursor: {initial_value: {created_at: $since}, ordering: ASC}
    where: {chat_room_id: {_eq: $chat_room_id}}
  ) {
    ...MessageFields
  }
}` + messageFields

const getChatRoom = `
query GetChatRoom($id: Int!) {
  chat_room_by_pk(id: $id) {
    ...RoomFields
  }
}` + roomFields + messageFields

const getChatRoomsForProfile = `
query GetChatRoomsForProfile($profile_id: Int!) {
  chat_room(
    where: {profile_to_chat_rooms: {profile_id: {_eq: $profile_id}}}
    order_by: {updated_at: desc}
  ) {
    ...RoomFields
  }
}` + roomFields + messageFields

const updateProfileLastActive = `
mutation UpdateProfileLastActive($profile_id: Int!, $at: timestamptz!) {
  update_profile_by_pk(pk_columns: {id: $profile_id}, _set: {last_active_at: $at}) {
    id
  }
}`

const recordProfileView = `
mutation RecordProfileView($viewer_profile_id: Int!, $viewed_profile_id: Int!) {
  insert_profile_view_one(object: {viewer_profile_id: $viewer_profile_id, viewed_profile_id: $viewed_profile_id}) {
    id
  }
}`
